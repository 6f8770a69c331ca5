package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vspimagectl/vspimagectl/internal/model"
)

// 任务日志中保存的回显最大长度
const maxLogOutput = 4096

// transcript 收集一次任务的全部命令交互，实现 software.Recorder
type transcript struct {
	mu     sync.Mutex
	taskID string
	store  *TaskStore
	log    *logrus.Entry
	seq    int
	buf    strings.Builder
}

func newTranscript(taskID string, store *TaskStore, log *logrus.Entry) *transcript {
	return &transcript{taskID: taskID, store: store, log: log}
}

// Record 追加留档并写入任务日志
func (t *transcript) Record(cmd, output string, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++

	fmt.Fprintf(&t.buf, "### [%d] %s (%s)\n", t.seq, cmd, elapsed.Round(time.Millisecond))
	if output != "" {
		t.buf.WriteString(output)
		if !strings.HasSuffix(output, "\n") {
			t.buf.WriteString("\n")
		}
	}
	if err != nil {
		fmt.Fprintf(&t.buf, "!!! %v\n", err)
	}

	if t.store == nil {
		return
	}
	entry := &model.TaskLog{
		TaskID:   t.taskID,
		Seq:      t.seq,
		Command:  cmd,
		Output:   truncate(output, maxLogOutput),
		Duration: elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if serr := t.store.AddLog(entry); serr != nil {
		t.log.WithError(serr).Warn("failed to persist task log")
	}
}

// String 完整留档文本
func (t *transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...(truncated)"
}
