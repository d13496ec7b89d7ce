// Package json decodes JSON records for the ingester. It accepts both a
// single document per file and a stream of concatenated or newline
// separated documents.
package json

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// Source is a lake.Source for reading json data.
type Source struct {
	dec *json.Decoder
}

// NewSource gets a new json source which will decode from the given reader.
// Numbers are kept as json.Number so that integers such as epoch
// milliseconds survive without going through float64.
func NewSource(r io.Reader) *Source {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Source{
		dec: dec,
	}
}

// Record implements lake.Source. It returns the next json object that can be
// decoded from the reader. It is guaranteed to return a map[string]interface{}
// if there is no error, and io.EOF once the input is exhausted.
func (s *Source) Record() (rec interface{}, err error) {
	var res map[string]interface{}
	err = s.dec.Decode(&res)
	if err != nil {
		return nil, err
	}
	if res == nil {
		// a literal null decodes without error
		return map[string]interface{}{}, nil
	}
	return res, nil
}

// NewLakeSource is NewSource with a return type suitable for
// lake.NewIngester.
func NewLakeSource(r io.Reader) lake.Source {
	return NewSource(r)
}

// ReadAll decodes every record from src until io.EOF.
func ReadAll(src lake.Source) ([]map[string]interface{}, error) {
	var recs []map[string]interface{}
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		m, ok := rec.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("record %d is a %T, not an object", len(recs), rec)
		}
		recs = append(recs, m)
	}
}
