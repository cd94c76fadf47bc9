package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/snipvault/internal/errors"
	"github.com/hpungsan/snipvault/internal/vault"
)

// CreateDerivedInput contains parameters for the CreateDerived operation.
type CreateDerivedInput struct {
	SourceFilename  string
	Folder          string            // required
	Highlights      []json.RawMessage // required, non-empty; stored verbatim
	RenderedBody    string            // markdown
	SourceReference string
}

// CreateDerived renders a derived document's artifact into its folder and
// records it. The artifact is written first; if the record cannot be saved
// the artifact is removed again.
func CreateDerived(ctx context.Context, v *Vault, input CreateDerivedInput) (*vault.DerivedDocument, error) {
	folder := vault.CleanName(input.Folder)
	if folder == "" {
		return nil, errors.NewInvalidRequest("folder is required")
	}
	if len(input.Highlights) == 0 {
		return nil, errors.NewInvalidRequest("at least one highlight is required")
	}
	for i, h := range input.Highlights {
		if !json.Valid(h) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("highlight %d is not valid JSON", i))
		}
	}

	dir, err := v.folderDir(ctx, folder)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	doc := vault.DerivedDocument{
		ID:              vault.NewID(),
		SourceFilename:  strings.TrimSpace(input.SourceFilename),
		Folder:          folder,
		Highlights:      make([]vault.Highlight, len(input.Highlights)),
		CreatedAt:       time.Now().Unix(),
		SourceReference: input.SourceReference,
		RenderedBody:    input.RenderedBody,
	}
	copy(doc.Highlights, input.Highlights)
	doc.RenderedPath = filepath.Join(dir, "highlighted_"+doc.ID+".html")

	artifact, err := renderDerived(doc)
	if err != nil {
		return nil, err
	}
	if _, err := writeFileAtomic(doc.RenderedPath, bytes.NewReader(artifact), 0644); err != nil {
		return nil, err
	}

	err = v.Derived.Mutate(ctx, func(docs map[string]vault.DerivedDocument) error {
		docs[doc.ID] = doc
		return nil
	})
	if err != nil {
		os.Remove(doc.RenderedPath)
		return nil, err
	}

	v.Log.Info("derived document created",
		slog.String("id", doc.ID),
		slog.String("folder", folder),
		slog.Int("highlights", len(doc.Highlights)),
	)
	return &doc, nil
}

var derivedTemplate = template.Must(template.New("derived").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article data-source="{{.Source}}" data-reference="{{.Reference}}">
{{.Body}}
</article>
<script type="application/json" id="highlights">{{.Highlights}}</script>
</body>
</html>
`))

// renderDerived produces the HTML artifact for doc. Highlights are embedded
// verbatim as a JSON array for viewers to overlay.
func renderDerived(doc vault.DerivedDocument) ([]byte, error) {
	highlights, err := json.Marshal(doc.Highlights)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	title := doc.SourceFilename
	if title == "" {
		title = doc.ID
	}

	var buf bytes.Buffer
	err = derivedTemplate.Execute(&buf, map[string]any{
		"Title":     title,
		"Source":    doc.SourceFilename,
		"Reference": doc.SourceReference,
		"Body":      renderMarkdown(doc.RenderedBody),
		// html/template JSON-escapes values inside script elements.
		"Highlights": json.RawMessage(highlights),
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return buf.Bytes(), nil
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// GetDerived returns one derived document record.
func GetDerived(ctx context.Context, v *Vault, id string) (*vault.DerivedDocument, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("derived document id is required")
	}
	doc, ok, err := v.Derived.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("derived document", id)
	}
	return &doc, nil
}

// ListDerivedInput contains parameters for the ListDerived operation.
type ListDerivedInput struct {
	Folder string // empty lists every folder
}

// ListDerivedOutput contains the result of the ListDerived operation.
type ListDerivedOutput struct {
	Items []vault.DerivedDocument `json:"items"`
}

// ListDerived returns derived documents ordered by creation time.
func ListDerived(ctx context.Context, v *Vault, input ListDerivedInput) (*ListDerivedOutput, error) {
	docs, err := v.Derived.Load(ctx)
	if err != nil {
		return nil, err
	}

	folder := vault.CleanName(input.Folder)
	items := make([]vault.DerivedDocument, 0, len(docs))
	for _, d := range docs {
		if folder != "" && d.Folder != folder {
			continue
		}
		items = append(items, d)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})
	return &ListDerivedOutput{Items: items}, nil
}

// FetchRendered opens a derived document's artifact. It returns NOT_FOUND
// when either the record or the file is missing. The caller must close it.
func FetchRendered(ctx context.Context, v *Vault, id string) (*os.File, error) {
	doc, err := GetDerived(ctx, v, id)
	if err != nil {
		return nil, err
	}

	f, err := openFileNoFollowRead(doc.RenderedPath)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			v.Log.Warn("derived document artifact missing",
				slog.String("id", id), slog.String("path", doc.RenderedPath))
			return nil, err
		}
		if errors.Is(err, errors.ErrInvalidRequest) {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
