package envdump

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
)

// Dump encodes an environment map in the direnv wire format
// (url-safe base64 over zlib over JSON), suitable for a shell hook to
// hand back to Load.
func Dump(obj map[string]string) string {
	jsonData, err := json.Marshal(obj)
	if err != nil {
		panic(fmt.Errorf("marshal(): %w", err))
	}

	zlibData := bytes.NewBuffer([]byte{})
	w := zlib.NewWriter(zlibData)
	// we assume the zlib writer would never fail
	_, _ = w.Write(jsonData)
	w.Close()

	return base64.URLEncoding.EncodeToString(zlibData.Bytes())
}

// Load decodes a Dump-encoded environment.
func Load(encoded string) (map[string]string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	defer zr.Close()

	jsonData, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, err
	}

	var obj map[string]string

	if err := json.Unmarshal(jsonData, &obj); err != nil {
		return nil, err
	}

	return obj, nil
}
