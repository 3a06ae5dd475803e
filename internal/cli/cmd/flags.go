package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func mustMarkFlagRequired(cmd *cobra.Command, name string) {
	if err := cmd.MarkFlagRequired(name); err != nil {
		panic(fmt.Sprintf("mark flag %q required: %v", name, err))
	}
}

func parseKeyValueList(raw string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		index := strings.Index(part, "=")
		if index <= 0 {
			return nil, newInputError("invalid --params entry %q; expected key=value", part)
		}
		key := strings.TrimSpace(part[:index])
		if key == "" {
			return nil, newInputError("invalid --params entry %q; key cannot be empty", part)
		}
		out[key] = strings.TrimSpace(part[index+1:])
	}
	return out, nil
}
