package media

import (
	"bytes"
	"database/sql"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
)

func newTestMedia(t *testing.T) {
	t.Helper()

	_ = snowflake.Setup(0)

	testDb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	testDb.SetMaxOpenConns(1)
	t.Cleanup(func() { testDb.Close() })

	_, err = testDb.Exec(`
			CREATE TABLE media (
				id BIGINT PRIMARY KEY,
				channel_id BIGINT NOT NULL,
				uploader VARCHAR(32) NOT NULL,
				file_name TEXT NOT NULL,
				original_name TEXT NOT NULL,
				mime_type VARCHAR(64) NOT NULL,
				kind VARCHAR(16) NOT NULL,
				size_bytes BIGINT NOT NULL,
				uploaded_at TIMESTAMP NOT NULL
			);
		`)
	if err != nil {
		t.Fatal(err)
	}

	if err := Setup(zap.NewNop().Sugar(), testDb, t.TempDir()); err != nil {
		t.Fatal(err)
	}
}

func multipartUpload(t *testing.T, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, writer.FormDataContentType()
}

func TestUploadAndList(t *testing.T) {
	newTestMedia(t)

	pngBytes := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	body, contentType := multipartUpload(t, "cat.png", pngBytes)
	r := httptest.NewRequest("POST", "/api/channels/1/media", body)
	r.Header.Set("Content-Type", contentType)

	entry, err := HandleUpload(r, 1, "alice")
	if err != nil {
		t.Fatal(err)
	}

	if entry.OriginalName != "cat.png" || entry.Author != "alice" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Kind != models.MediaImage {
		t.Errorf("kind = %q, want image for a png upload", entry.Kind)
	}
	if entry.Url == "" || entry.StoredName == "" {
		t.Error("entry has no stored location")
	}

	entries, err := ListChannel(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Errorf("list = %+v, want the uploaded entry", entries)
	}

	// other channels see nothing
	empty, err := ListChannel(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("channel 2 lists %+v", empty)
	}
}

func TestDeleteChannelDropsIndex(t *testing.T) {
	newTestMedia(t)

	body, contentType := multipartUpload(t, "clip.mp4", []byte("fake video bytes"))
	r := httptest.NewRequest("POST", "/api/channels/7/media", body)
	r.Header.Set("Content-Type", contentType)

	if _, err := HandleUpload(r, 7, "bob"); err != nil {
		t.Fatal(err)
	}

	if err := DeleteChannel(7); err != nil {
		t.Fatal(err)
	}

	entries, err := ListChannel(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("index still lists %+v after channel delete", entries)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	newTestMedia(t)

	r := httptest.NewRequest("POST", "/api/channels/1/media", bytes.NewReader(nil))
	r.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	if _, err := HandleUpload(r, 1, "alice"); err == nil {
		t.Error("upload without a file field succeeded")
	}
}
