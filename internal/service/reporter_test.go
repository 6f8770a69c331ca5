package service

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vspimagectl/vspimagectl/internal/software"
)

func sampleResponse() *LifecycleResponse {
	return &LifecycleResponse{
		TaskID:  "t-1",
		Changed: true,
		Msg:     "completed: add, activate; version D.4",
		Version: "D.4",
		Snapshot: &software.InventorySnapshot{
			Images:   []software.SoftwareImage{{ID: "B.2", Role: software.RolePrimary}, {ID: "D.4", Role: software.RoleNextBoot}},
			Primary:  "B.2",
			NextBoot: "D.4",
		},
		Steps: []Step{
			{Name: "add", Changed: true, Value: "D.4"},
			{Name: "activate", Changed: true, Value: "D.4"},
			{Name: "save_config", Error: "save_config: unexpected_output"},
		},
		Warnings: []string{"configuration not saved"},
	}
}

func TestJSONReporterContract(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONReporter{}.Report(&buf, sampleResponse()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, true, got["changed"])
	assert.Equal(t, false, got["failed"])
	assert.Equal(t, "completed: add, activate; version D.4", got["msg"])
	assert.NotContains(t, got, "error_kind", "成功时不输出错误分类")
}

func TestTextReporter(t *testing.T) {
	resp := sampleResponse()
	resp.Failed = true
	resp.ErrorKind = "postcondition_mismatch"

	var buf bytes.Buffer
	require.NoError(t, TextReporter{}.Report(&buf, resp))
	out := buf.String()
	assert.Contains(t, out, "status:  FAILED (postcondition_mismatch)")
	assert.Contains(t, out, "+ add")
	assert.Contains(t, out, "x save_config")
	assert.Contains(t, out, "next-boot")
	assert.Contains(t, out, "warning: configuration not saved")
}

func TestNewReporter(t *testing.T) {
	r, err := NewReporter("")
	require.NoError(t, err)
	assert.IsType(t, JSONReporter{}, r)

	r, err = NewReporter("TEXT")
	require.NoError(t, err)
	assert.IsType(t, TextReporter{}, r)

	_, err = NewReporter("yaml")
	assert.Error(t, err)
}
