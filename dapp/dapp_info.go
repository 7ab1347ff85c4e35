package dapp

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// DappInfo maps creator addresses to application labels. It is loaded once and only read afterwards.
type DappInfo struct {
	labels map[common.Address]string
}

// NewDappInfo creates a DappInfo from an existing creator to label mapping.
func NewDappInfo(labels map[common.Address]string) *DappInfo {
	info := &DappInfo{labels: make(map[common.Address]string, len(labels))}
	for creator, label := range labels {
		info.labels[creator] = label
	}
	return info
}

// LoadDappInfo reads a DappInfo from a CSV file of "address,name" rows. A header row is skipped if present.
func LoadDappInfo(path string) (*DappInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	info, err := ReadDappInfo(file)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read dapp table %s", path)
	}
	return info, nil
}

// ReadDappInfo parses "address,name" CSV rows from r.
func ReadDappInfo(r io.Reader) (*DappInfo, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	info := &DappInfo{labels: make(map[common.Address]string)}
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if len(record) < 2 {
			return nil, errors.Errorf("line %d: expected address and name, got %d fields", line, len(record))
		}

		address := strings.TrimSpace(record[0])
		if !common.IsHexAddress(address) {
			// Only the first line may be a header
			if line == 1 {
				continue
			}
			return nil, errors.Errorf("line %d: invalid address %q", line, address)
		}
		info.labels[common.HexToAddress(address)] = strings.TrimSpace(record[1])
	}
	return info, nil
}

// Lookup returns the application label of creator.
func (d *DappInfo) Lookup(creator common.Address) (string, bool) {
	if d == nil {
		return "", false
	}
	label, ok := d.labels[creator]
	return label, ok
}

// Len returns the number of labelled creators.
func (d *DappInfo) Len() int {
	if d == nil {
		return 0
	}
	return len(d.labels)
}
