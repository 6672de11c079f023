package qti

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/qti/parser"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

type QuestionWriter interface {
	PutQuestion(ctx context.Context, q exam.Question) error
}

type Report struct {
	ImportID string   `json:"import_id"`
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
	Media    int      `json:"media"`
}

// Import loads a QTI zip package into the question bank. Package media is
// copied to blobs (when non-nil) and prompt references are rewritten to
// AssetPrefix + blob key.
func Import(ctx context.Context, r io.ReaderAt, size int64, d Defaults, bank QuestionWriter, blobs storage.BlobStore, assetPrefix string) (Report, error) {
	rep := Report{ImportID: uuid.NewString()}
	dir, err := parser.UnzipToTemp(r, size)
	if err != nil {
		return rep, fmt.Errorf("unzip: %w", err)
	}
	defer os.RemoveAll(dir)

	mf, itemPaths, err := parser.ParseManifest(dir)
	if err != nil {
		return rep, fmt.Errorf("manifest: %w", err)
	}

	media := map[string]string{} // package-relative path -> blob key
	if blobs != nil {
		for _, res := range mf.Resources {
			for _, rel := range res.Files {
				if strings.EqualFold(path.Ext(rel), ".xml") {
					continue
				}
				if _, done := media[rel]; done {
					continue
				}
				key, err := uploadMedia(ctx, blobs, dir, rel, "qti/"+rep.ImportID+"/"+rel)
				if err != nil {
					return rep, fmt.Errorf("media %s: %w", rel, err)
				}
				media[rel] = key
			}
		}
	}
	rep.Media = len(media)

	items := make([]parser.ParsedItem, 0, len(itemPaths))
	for _, p := range itemPaths {
		it, err := parser.ParseItemFile(dir, p)
		if err != nil {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		items = append(items, it)
	}

	questions, skipped := MapToQuestions(items, d, mediaRewriter(media, assetPrefix))
	for _, err := range skipped {
		rep.Skipped = append(rep.Skipped, err.Error())
	}
	for _, q := range questions {
		for _, key := range media {
			if strings.Contains(q.BodyHTML, key) {
				q.Images = append(q.Images, key)
			}
		}
		if err := bank.PutQuestion(ctx, q); err != nil {
			return rep, fmt.Errorf("save %s: %w", q.ID, err)
		}
		rep.Imported = append(rep.Imported, q.ID)
	}
	return rep, nil
}

func uploadMedia(ctx context.Context, blobs storage.BlobStore, dir, rel, key string) (string, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", err
	}
	return blobs.Put(ctx, key, f, st.Size(), mime.TypeByExtension(path.Ext(rel)))
}

// mediaRewriter points src/href attributes at the uploaded copies.
func mediaRewriter(media map[string]string, prefix string) func(string) string {
	if len(media) == 0 {
		return NoopRewrite
	}
	return func(in string) string {
		out := in
		for rel, key := range media {
			for _, q := range []string{`"`, `'`} {
				out = strings.ReplaceAll(out, "src="+q+rel+q, "src="+q+prefix+key+q)
				out = strings.ReplaceAll(out, "href="+q+rel+q, "href="+q+prefix+key+q)
			}
		}
		return out
	}
}
