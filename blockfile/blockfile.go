// Package blockfile reads and writes bytecode blocks as canonical CBOR
// (.kbc files) and loads them for `using`.
package blockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/vgxbj/Kagami/vm"
)

// Ext is the extension of block files.
const Ext = ".kbc"

// Marshal serializes b to canonical CBOR. Equal blocks encode to equal
// bytes.
func Marshal(b *vm.Block) ([]byte, error) {
	data, err := cborEncMode.Marshal(toWire(b))
	if err != nil {
		return nil, fmt.Errorf("blockfile: marshal %s: %w", b.Name, err)
	}
	return data, nil
}

// Unmarshal decodes and validates a block.
func Unmarshal(data []byte) (*vm.Block, error) {
	var wb wireBlock
	if err := cbor.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("blockfile: unmarshal block: %w", err)
	}
	return wb.block()
}

// Digest returns the hex SHA-256 of encoded block data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReadFile reads the block stored at path.
func ReadFile(path string) (*vm.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// WriteFile stores b at path, creating parent directories.
func WriteFile(path string, b *vm.Block) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
