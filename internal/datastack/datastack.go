// Package datastack reads and writes InVEST datastack parameter sets, the
// JSON documents `invest run -d` consumes.
package datastack

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Datastack is an InVEST parameter set
type Datastack struct {
	Args          map[string]string `json:"args"`
	InvestVersion string            `json:"invest_version"`
	ModelName     string            `json:"model_name"`
}

// Write a datastack to given path
func Write(path string, ds Datastack) error {
	// marshal
	bytes, err := json.MarshalIndent(ds, "", "    ")
	if err != nil {
		return err
	}

	// create file
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	// write file
	if _, err := f.Write(bytes); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Read a datastack from given path
func Read(path string) (Datastack, error) {
	var ds Datastack

	file, err := os.Open(path)
	if err != nil {
		return ds, err
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return ds, err
	}

	if err := json.Unmarshal(bytes, &ds); err != nil {
		return ds, fmt.Errorf("%s: %w", path, err)
	}
	if ds.ModelName == "" {
		return ds, fmt.Errorf("%s has no model_name", path)
	}

	return ds, nil
}
