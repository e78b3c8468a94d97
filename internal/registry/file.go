package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"chainIndexer/internal/model"
)

// FileSource reads contract interfaces from a YAML file:
//
//	interfaces:
//	  - address: "0x..."
//	    name: Proxy
//	    implementation: "0x..."
//	    abi_file: abis/proxy.json
//
// abi holds inline ABI JSON; abi_file is resolved relative to the YAML file.
type FileSource struct {
	Path string
}

type fileEntry struct {
	Address        string  `yaml:"address"`
	Name           string  `yaml:"name"`
	ABI            string  `yaml:"abi"`
	ABIFile        string  `yaml:"abi_file"`
	Implementation *string `yaml:"implementation"`
}

type fileDocument struct {
	Interfaces []fileEntry `yaml:"interfaces"`
}

// ListInterfaces parses the file on every call so edits are picked up on reload.
func (f *FileSource) ListInterfaces(_ context.Context) ([]model.ContractInterface, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read interfaces file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse interfaces file: %w", err)
	}

	out := make([]model.ContractInterface, 0, len(doc.Interfaces))
	for _, entry := range doc.Interfaces {
		abiJSON := strings.TrimSpace(entry.ABI)
		if abiJSON == "" && entry.ABIFile != "" {
			path := entry.ABIFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(filepath.Dir(f.Path), path)
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read abi file for %s: %w", entry.Address, err)
			}
			abiJSON = string(raw)
		}
		if abiJSON == "" {
			return nil, fmt.Errorf("interface %s has no abi", entry.Address)
		}
		out = append(out, model.ContractInterface{
			Address:        entry.Address,
			Name:           entry.Name,
			ABI:            abiJSON,
			Implementation: entry.Implementation,
		})
	}
	return out, nil
}

// MultiSource merges sources in order; later sources win on the same address.
type MultiSource []Source

func (m MultiSource) ListInterfaces(ctx context.Context) ([]model.ContractInterface, error) {
	index := make(map[string]int)
	var out []model.ContractInterface
	for _, source := range m {
		if source == nil {
			continue
		}
		items, err := source.ListInterfaces(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			key := strings.ToLower(item.Address)
			if i, ok := index[key]; ok {
				out[i] = item
				continue
			}
			index[key] = len(out)
			out = append(out, item)
		}
	}
	return out, nil
}
