// Package archive extracts tweet IDs from an X data export.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoTweetsFile is returned when the archive has no tweets file.
var ErrNoTweetsFile = errors.New("could not find tweet.js in the uploaded file")

// tweetFiles are the entry names exports have used, most specific first.
var tweetFiles = []string{"data/tweets.js", "data/tweet.js", "tweets.js", "tweet.js"}

// maxEntrySize bounds how much of one entry is read.
const maxEntrySize = 512 << 20

// TweetIDs reads the tweets file out of a zipped archive and returns its IDs
// in file order, without duplicates.
func TweetIDs(r io.ReaderAt, size int64) ([]string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	f := findTweetsFile(zr.File)
	if f == nil {
		return nil, ErrNoTweetsFile
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return ParseTweetsJS(data)
}

func findTweetsFile(files []*zip.File) *zip.File {
	byName := make(map[string]*zip.File, len(files))
	for _, f := range files {
		byName[strings.TrimPrefix(path.Clean(f.Name), "/")] = f
	}
	for _, name := range tweetFiles {
		if f, ok := byName[name]; ok {
			return f
		}
	}
	return nil
}

// ParseTweetsJS parses the contents of tweets.js. The export wraps a JSON
// array in a "window.YTD.tweets.part0 = " assignment, which is stripped.
func ParseTweetsJS(data []byte) ([]string, error) {
	if i := bytes.IndexByte(data, '['); i >= 0 {
		data = data[i:]
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("tweets file is not a valid JSON array")
	}

	seen := make(map[string]struct{})
	var ids []string
	gjson.GetBytes(data, "#.tweet.id_str").ForEach(func(_, v gjson.Result) bool {
		id := v.String()
		if id == "" {
			return true
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return true
	})
	return ids, nil
}
