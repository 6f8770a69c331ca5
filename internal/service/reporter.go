package service

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Reporter 将结果按调用方契约输出
type Reporter interface {
	Report(w io.Writer, resp *LifecycleResponse) error
}

// NewReporter 按名称选择输出格式，默认 json
func NewReporter(format string) (Reporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return JSONReporter{}, nil
	case "text":
		return TextReporter{}, nil
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

// JSONReporter 单个 JSON 对象（changed/failed/msg 及详情）
type JSONReporter struct {
	Indent bool
}

func (r JSONReporter) Report(w io.Writer, resp *LifecycleResponse) error {
	enc := json.NewEncoder(w)
	if r.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

// TextReporter 面向人工阅读的摘要
type TextReporter struct{}

func (TextReporter) Report(w io.Writer, resp *LifecycleResponse) error {
	var b strings.Builder
	status := "ok"
	if resp.Failed {
		status = "FAILED"
		if resp.ErrorKind != "" {
			status += " (" + resp.ErrorKind + ")"
		}
	}
	fmt.Fprintf(&b, "task:    %s\n", resp.TaskID)
	fmt.Fprintf(&b, "status:  %s\n", status)
	fmt.Fprintf(&b, "changed: %t\n", resp.Changed)
	fmt.Fprintf(&b, "msg:     %s\n", resp.Msg)
	if resp.Version != "" {
		fmt.Fprintf(&b, "version: %s\n", resp.Version)
	}
	for _, st := range resp.Steps {
		mark := "-"
		switch {
		case st.Error != "":
			mark = "x"
		case st.Skipped:
			mark = "~"
		case st.Changed:
			mark = "+"
		}
		fmt.Fprintf(&b, "  %s %-12s %6dms", mark, st.Name, st.DurationMS)
		if st.Value != "" {
			fmt.Fprintf(&b, "  %s", st.Value)
		}
		if st.Error != "" {
			fmt.Fprintf(&b, "  %s", st.Error)
		}
		b.WriteString("\n")
	}
	if snap := resp.Snapshot; snap != nil {
		b.WriteString("images:\n")
		for _, img := range snap.Images {
			fmt.Fprintf(&b, "  %-40s %s\n", img.ID, img.Role)
		}
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	if resp.Transcript != "" {
		fmt.Fprintf(&b, "transcript: %s\n", resp.Transcript)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
