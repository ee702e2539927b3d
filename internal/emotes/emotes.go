// Package emotes keeps the registry of emote assets and performs the
// built-in :name: substitution on text messages.
package emotes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/validator"
)

type Emote struct {
	Name string `json:"name"`
	Url  string `json:"url"`
}

var mutex sync.RWMutex
var registry = make(map[string]string) // name -> filename

var sugar *zap.SugaredLogger
var emotesDir string

func Setup(_sugar *zap.SugaredLogger, dir string) error {
	sugar = _sugar
	emotesDir = dir
	return os.MkdirAll(emotesDir, os.ModePerm)
}

// Register maps an emote name to a stored asset file.
func Register(name string, filename string) error {
	if err := validator.EmoteName(name); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid emote name", err)
	}

	mutex.Lock()
	defer mutex.Unlock()

	registry[name] = filename
	return nil
}

func List() []Emote {
	mutex.RLock()
	defer mutex.RUnlock()

	list := make([]Emote, 0, len(registry))
	for name, filename := range registry {
		list = append(list, Emote{Name: name, Url: "/cdn/emotes/" + filename})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Parse replaces literal :name: tokens with a reference to the registered
// asset. Unknown tokens pass through unchanged.
func Parse(content string) string {
	if !strings.Contains(content, ":") {
		return content
	}

	mutex.RLock()
	defer mutex.RUnlock()

	var builder strings.Builder
	remaining := content

	for {
		start := strings.IndexByte(remaining, ':')
		if start == -1 {
			builder.WriteString(remaining)
			break
		}

		end := strings.IndexByte(remaining[start+1:], ':')
		if end == -1 {
			builder.WriteString(remaining)
			break
		}
		end += start + 1

		name := remaining[start+1 : end]
		filename, known := registry[name]
		if !known || validator.EmoteName(name) != nil {
			// not an emote token, emit up to the second colon so adjacent
			// tokens like :a::b: still resolve
			builder.WriteString(remaining[:end])
			remaining = remaining[end:]
			continue
		}

		builder.WriteString(remaining[:start])
		builder.WriteString(fmt.Sprintf(`<img src="/cdn/emotes/%s" alt="%s" class="emote">`, filename, name))
		remaining = remaining[end+1:]
	}

	return builder.String()
}

// HandleUpload stores an uploaded emote asset under a content-hash filename
// and registers it, mirroring how avatar uploads are deduplicated.
func HandleUpload(r *http.Request) (Emote, error) {
	formFile, header, err := r.FormFile("emote")
	if err != nil {
		return Emote{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "no emote file uploaded", err)
	}
	defer func() {
		if err := formFile.Close(); err != nil {
			sugar.Error(err)
		}
	}()

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	if err := validator.EmoteName(name); err != nil {
		return Emote{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid emote name", err)
	}

	inputBytes, err := io.ReadAll(formFile)
	if err != nil {
		return Emote{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't read emote upload", err)
	}

	hash := sha256.Sum256(inputBytes)
	filename := hex.EncodeToString(hash[:]) + filepath.Ext(header.Filename)
	fullPath := filepath.Join(emotesDir, filename)

	mutex.Lock()
	defer mutex.Unlock()

	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		if err := os.WriteFile(fullPath, inputBytes, 0644); err != nil {
			return Emote{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't store emote", err)
		}
	} else if err != nil {
		return Emote{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't stat emote file", err)
	}

	registry[name] = filename
	sugar.Infof("Registered emote [%s] as [%s]", name, filename)

	return Emote{Name: name, Url: "/cdn/emotes/" + filename}, nil
}
