package flowconfig

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/c360/formflow/errors"
)

const maxFlowFileSize = 5 << 20

// LoadFiles reads every flow document from the given YAML files
func LoadFiles(paths ...string) ([]*FlowConfig, error) {
	var flows []*FlowConfig
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "LoadFiles", fmt.Sprintf("stat %s", path))
		}
		if info.Size() > maxFlowFileSize {
			return nil, errors.WrapInvalid(
				fmt.Errorf("flow file too large: %d bytes", info.Size()), "Loader", "LoadFiles", "size check")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "LoadFiles", fmt.Sprintf("read %s", path))
		}

		parsed, err := Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		flows = append(flows, parsed...)
	}
	return flows, nil
}

// Parse decodes a stream of YAML documents, one flow per document
func Parse(r io.Reader) ([]*FlowConfig, error) {
	decoder := yaml.NewDecoder(r)

	var flows []*FlowConfig
	for {
		var doc yaml.Node
		err := decoder.Decode(&doc)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Parse", "decode flow document")
		}
		if len(doc.Content) == 0 {
			continue
		}

		var flow FlowConfig
		if err := doc.Decode(&flow); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Parse", "decode flow")
		}
		flow.ScreenOrder = screenOrder(&doc)
		normalize(&flow)
		flows = append(flows, &flow)
	}
	return flows, nil
}

// screenOrder extracts the key order of the "flow" mapping
func screenOrder(doc *yaml.Node) []string {
	root := doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "flow" {
			continue
		}
		screens := root.Content[i+1]
		if screens.Kind != yaml.MappingNode {
			return nil
		}
		order := make([]string, 0, len(screens.Content)/2)
		for j := 0; j+1 < len(screens.Content); j += 2 {
			order = append(order, screens.Content[j].Value)
		}
		return order
	}
	return nil
}

// normalize fills names from map keys and drops nil entries
func normalize(flow *FlowConfig) {
	for name, screen := range flow.Screens {
		if screen == nil {
			screen = &ScreenConfig{}
			flow.Screens[name] = screen
		}
		screen.Name = name
	}
	for name, subflow := range flow.Subflows {
		if subflow == nil {
			delete(flow.Subflows, name)
			continue
		}
		subflow.Name = name
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
