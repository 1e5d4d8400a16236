package filestore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/solverhub/backend/internal/apperror"
)

func TestSaveOpenDelete(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	ref, err := d.Save(ctx, "../../etc/work.zip", strings.NewReader("PK-data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(ref, "/") || !strings.HasSuffix(ref, "-work.zip") {
		t.Errorf("ref = %q", ref)
	}

	rc, err := d.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "PK-data" {
		t.Errorf("content = %q", data)
	}

	if err := d.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.Open(ctx, ref); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Open after delete err = %v, want not found", err)
	}
}

func TestRefTraversalRejected(t *testing.T) {
	d, _ := NewDisk(t.TempDir())
	for _, ref := range []string{"", "..", "../secret", "a/b"} {
		if _, err := d.Open(context.Background(), ref); apperror.CodeOf(err) != apperror.CodeValidation {
			t.Errorf("Open(%q) err = %v, want validation", ref, err)
		}
	}
}
