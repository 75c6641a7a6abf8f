package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFileRef(t *testing.T) {
	req := require.New(t)

	req.Nil(NewFileRef("", "a.pdf"))
	req.Nil(NewFileRef("   ", ""))

	ref := NewFileRef("/media/files/Report.PDF", "")
	req.Equal(&FileRef{URL: "/media/files/Report.PDF", Name: "Report.PDF", Type: "pdf"}, ref)

	ref = NewFileRef("/media/files/abc123", "photo.JPeG")
	req.Equal("photo.JPeG", ref.Name)
	req.Equal("jpeg", ref.Type)
}

func TestFileType(t *testing.T) {
	req := require.New(t)
	req.Equal("", FileType("README"))
	req.Equal("gz", FileType("archive.tar.gz"))
	req.Equal("", FileType("trailing."))
}
