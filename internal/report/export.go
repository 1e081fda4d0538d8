package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/aggregate"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// WriteJSON writes r as indented JSON with sorted map keys.
func WriteJSON(w io.Writer, r *aggregate.Result) error {
	data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write result")
	}
	return nil
}

// ExportFilename is vlr-{team-with-dashes}-{unix-millis}.json.
func ExportFilename(teamName string, now time.Time) string {
	return fmt.Sprintf("vlr-%s-%d.json", whitespaceRe.ReplaceAllString(teamName, "-"), now.UnixMilli())
}

// ExportFile writes r to path, or to ExportFilename inside dir when path is
// a directory. It returns the path written.
func ExportFile(path string, r *aggregate.Result, now time.Time) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ExportFilename(r.TeamName, now))
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if err := WriteJSON(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}
