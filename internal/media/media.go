// Package media is the channel-scoped upload index. File bytes live under
// public/media named by their content hash; metadata lives in the database
// so the index survives restarts.
package media

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
)

// uploads are capped well below the router's body limit
const maxUploadBytes = 32 << 20

var mutex sync.Mutex

var sugar *zap.SugaredLogger
var db *sql.DB
var dir string

func Setup(_sugar *zap.SugaredLogger, _db *sql.DB, _dir string) error {
	sugar = _sugar
	db = _db
	dir = _dir

	return os.MkdirAll(dir, os.ModePerm)
}

func kindOf(mimeType string) models.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.MediaVideo
	default:
		return models.MediaOther
	}
}

// HandleUpload stores one multipart file field named "file". The stored name
// is the content hash, so re-uploading identical bytes costs no extra disk.
func HandleUpload(r *http.Request, channelID int64, uploader string) (models.MediaEntry, error) {
	formFile, header, err := r.FormFile("file")
	if err != nil {
		return models.MediaEntry{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "missing file field", err)
	}
	defer formFile.Close()

	inputBytes, err := io.ReadAll(io.LimitReader(formFile, maxUploadBytes+1))
	if err != nil {
		return models.MediaEntry{}, err
	}
	if len(inputBytes) > maxUploadBytes {
		return models.MediaEntry{}, apperrors.InvalidArg("file is too large")
	}

	// multipart writers default to octet-stream, sniff the real type then
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(inputBytes)
	}

	hash := sha256.Sum256(inputBytes)
	fileName := hex.EncodeToString(hash[:]) + filepath.Ext(header.Filename)
	fullPath := filepath.Join(dir, fileName)

	mutex.Lock()
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		err = os.WriteFile(fullPath, inputBytes, 0644)
	}
	mutex.Unlock()
	if err != nil && !os.IsNotExist(err) {
		return models.MediaEntry{}, err
	}

	id, err := snowflake.Generate()
	if err != nil {
		return models.MediaEntry{}, err
	}

	entry := models.MediaEntry{
		ID:           id,
		ChannelID:    channelID,
		Author:       uploader,
		OriginalName: header.Filename,
		StoredName:   fileName,
		MimeType:     mimeType,
		Size:         int64(len(inputBytes)),
		Kind:         kindOf(mimeType),
		Url:          "/cdn/media/" + fileName,
		UploadedAt:   time.Now().UTC(),
	}

	_, err = db.Exec(
		"INSERT INTO media (id, channel_id, uploader, file_name, original_name, mime_type, kind, size_bytes, uploaded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.ID, entry.ChannelID, entry.Author, entry.StoredName, entry.OriginalName, entry.MimeType, string(entry.Kind), entry.Size, entry.UploadedAt)
	if err != nil {
		return models.MediaEntry{}, err
	}

	sugar.Infof("User [%s] uploaded [%s] to channel ID [%d]", uploader, header.Filename, channelID)
	return entry, nil
}

// ListChannel returns the channel's uploads, newest first.
func ListChannel(channelID int64) ([]models.MediaEntry, error) {
	rows, err := db.Query(
		"SELECT id, channel_id, uploader, file_name, original_name, mime_type, kind, size_bytes, uploaded_at FROM media WHERE channel_id = ? ORDER BY id DESC",
		channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.MediaEntry{}
	for rows.Next() {
		var entry models.MediaEntry
		var kind string
		err := rows.Scan(&entry.ID, &entry.ChannelID, &entry.Author, &entry.StoredName, &entry.OriginalName, &entry.MimeType, &kind, &entry.Size, &entry.UploadedAt)
		if err != nil {
			return nil, err
		}
		entry.Kind = models.MediaKind(kind)
		entry.Url = "/cdn/media/" + entry.StoredName
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteChannel drops the channel's index rows. File bytes stay on disk
// since identical content may be referenced from other channels.
func DeleteChannel(channelID int64) error {
	result, err := db.Exec("DELETE FROM media WHERE channel_id = ?", channelID)
	if err != nil {
		return err
	}

	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		sugar.Infof("Deleted [%d] media entries of channel ID [%d]", deleted, channelID)
	}
	return nil
}
