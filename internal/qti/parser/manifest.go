package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsafePath = errors.New("zip entry escapes the package root")

type Manifest struct {
	Resources []ManifestResource
}

type ManifestResource struct {
	Identifier string
	Href       string
	Type       string
	Files      []string
}

type imsManifest struct {
	XMLName   xml.Name      `xml:"manifest"`
	Resources []imsResource `xml:"resources>resource"`
}
type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Href       string    `xml:"href,attr"`
	Type       string    `xml:"type,attr"`
	Files      []imsFile `xml:"file"`
}
type imsFile struct {
	Href string `xml:"href,attr"`
}

// UnzipToTemp extracts a package into a new temp dir and returns it. The
// caller removes the directory.
func UnzipToTemp(r io.ReaderAt, size int64) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp("", "qti-*")
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if err := extract(tmp, f); err != nil {
			_ = os.RemoveAll(tmp)
			return "", err
		}
	}
	return tmp, nil
}

func extract(base string, f *zip.File) error {
	dst := filepath.Join(base, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(dst, filepath.Clean(base)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dst, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ParseManifest reads imsmanifest.xml and returns the manifest plus the item
// files it lists, in manifest order.
func ParseManifest(base string) (Manifest, []string, error) {
	paths := []string{"imsmanifest.xml", "manifest.xml"}
	var mfPath string
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(base, p)); err == nil {
			mfPath = filepath.Join(base, p)
			break
		}
	}
	if mfPath == "" {
		return Manifest{}, nil, fmt.Errorf("imsmanifest.xml not found")
	}

	b, err := os.ReadFile(mfPath)
	if err != nil {
		return Manifest{}, nil, err
	}

	var mf imsManifest
	if err := xml.Unmarshal(b, &mf); err != nil {
		return Manifest{}, nil, err
	}

	var out Manifest
	var items []string
	for _, r := range mf.Resources {
		res := ManifestResource{
			Identifier: r.Identifier,
			Href:       r.Href,
			Type:       r.Type,
		}
		for _, f := range r.Files {
			res.Files = append(res.Files, f.Href)
		}
		out.Resources = append(out.Resources, res)
		lower := strings.ToLower(r.Href)
		if strings.HasSuffix(lower, ".xml") && !strings.Contains(lower, "manifest") &&
			(r.Type == "" || strings.Contains(strings.ToLower(r.Type), "item")) {
			items = append(items, r.Href)
		}
	}
	return out, items, nil
}
