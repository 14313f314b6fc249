/*
Copyright © 2025 Travis Lyons travis.lyons@gmail.com

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/trly/pei-docker/internal/cfgerr"
)

var (
	colorError   = color.New(color.FgRed).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorSuccess = color.New(color.FgGreen).SprintFunc()
)

// PrintOutput formats and prints data according to the specified output format.
// Text output is rendered by the caller, so "text" is rejected here.
func PrintOutput(w io.Writer, format string, data interface{}) error {
	switch strings.ToLower(format) {
	case "json":
		return printJSON(w, data)
	case "yaml", "yml":
		return printYAML(w, data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func validOutputFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json", "yaml", "yml":
		return true
	}
	return false
}

// printJSON outputs data as JSON.
func printJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printYAML outputs data as YAML.
func printYAML(w io.Writer, data interface{}) error {
	encoder := yaml.NewEncoder(w)
	defer func() {
		_ = encoder.Close()
	}()
	return encoder.Encode(data)
}

// IssueResult is one configuration error in structured form.
type IssueResult struct {
	Kind    string `json:"kind" yaml:"kind"`
	Stage   string `json:"stage,omitempty" yaml:"stage,omitempty"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// OperationResult represents the result of an operation that can be output in structured format.
type OperationResult struct {
	Success  bool          `json:"success" yaml:"success"`
	Message  string        `json:"message,omitempty" yaml:"message,omitempty"`
	Items    []string      `json:"items,omitempty" yaml:"items,omitempty"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors   []IssueResult `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// issuesFrom flattens err into structured issues. Errors that carry no
// location are reported with kind "error".
func issuesFrom(err error) []IssueResult {
	located := cfgerr.Collect(err)
	if len(located) == 0 {
		return []IssueResult{{Kind: "error", Message: err.Error()}}
	}
	out := make([]IssueResult, 0, len(located))
	for _, e := range located {
		out = append(out, IssueResult{
			Kind:    e.Kind.String(),
			Stage:   e.Stage,
			Field:   e.Field,
			Value:   e.Value,
			Message: e.Error(),
		})
	}
	return out
}
