package simulate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labDevice() *Device {
	return NewDevice(DeviceConfig{
		Hostname: "VSP-LAB",
		Images:   []string{"A.1", "B.2", "C.3"},
		Primary:  "B.2",
		Backup:   "A.1",
		Flash:    []string{"D.4.tgz", "B.2.tgz", "bad.tgz"},
		Invalid:  []string{"bad.tgz"},
	})
}

func TestShowSoftwareRoles(t *testing.T) {
	d := labDevice()
	d.Activate("C.3")
	out := d.ShowSoftware()

	assert.Contains(t, out, "B.2 (Primary Release)")
	assert.Contains(t, out, "A.1 (Backup Release)")
	assert.Contains(t, out, "C.3 (Next Boot Release)")
	assert.Equal(t, 2, strings.Count(out, inventoryHeader), "标题上下各一条页眉")
	assert.Contains(t, out, inventoryFooter)
}

func TestTerminalEnableAndPrompt(t *testing.T) {
	d := NewDevice(DeviceConfig{Hostname: "VSP", EnablePassword: "secret"})
	term := NewTerminal(d, "default", "")
	assert.Equal(t, "VSP:1>", term.Prompt())

	r := term.Handle("software remove X")
	assert.Contains(t, r.Output, "enable mode required")

	r = term.Handle("enable")
	assert.Empty(t, r.Prompt, "等待密码时不打印提示符")
	assert.True(t, term.Pending())

	r = term.Handle("wrong")
	assert.Contains(t, r.Output, "Bad secrets")
	assert.Equal(t, "VSP:1>", r.Prompt)

	term.Handle("enable")
	r = term.Handle("secret")
	assert.Equal(t, "VSP:1#", r.Prompt)
}

func TestAddExistingWaitsForAnswer(t *testing.T) {
	d := labDevice()
	term := NewTerminal(d, "default", "")
	term.Handle("enable")

	r := term.Handle("software add B.2.tgz")
	assert.Contains(t, r.Output, "already exists in /intflash/release/. Do you want to re-add it? (y/n) ?")
	assert.Empty(t, r.Prompt)

	r = term.Handle("n")
	assert.Empty(t, r.Output)
	assert.False(t, term.Pending())
	assert.Equal(t, []string{"A.1", "B.2", "C.3"}, d.State().Images, "回答 n 不改变清单")
}

func TestAddOutcomes(t *testing.T) {
	d := labDevice()

	res := d.Add("D.4.tgz")
	assert.Contains(t, res.Output, "Extraction of D.4 to /intflash/release/ successful")
	assert.Contains(t, d.State().Images, "D.4")

	res = d.Add("missing.tgz")
	assert.Contains(t, res.Output, "not found.")

	res = d.Add("bad.tgz")
	assert.Contains(t, res.Output, "Invalid release archive")
}

func TestActivateAndReset(t *testing.T) {
	d := labDevice()

	assert.Contains(t, d.Activate("Z.9"), "does not exist in /intflash/release/.")
	assert.Contains(t, d.Activate("B.2"), "is already set as the primary version.")
	assert.Contains(t, d.Activate("C.3"), "Changes will take effect on next reboot.")
	assert.Contains(t, d.Activate("C.3"), "is already set as the next boot release.")

	d.Reset()
	st := d.State()
	assert.Equal(t, "C.3", st.Primary)
	assert.Equal(t, "B.2", st.Backup)
	assert.Empty(t, st.NextBoot)
	assert.Equal(t, 1, st.Boots)
}

func TestRemoveProtectsBootRoles(t *testing.T) {
	d := labDevice()

	assert.Contains(t, d.Remove("B.2"), "You can not remove Primary version.")
	assert.Contains(t, d.Remove("A.1"), "You can not remove the Backup version.")
	assert.Contains(t, d.Remove("C.3"), "removed successfully.")
	assert.Equal(t, []string{"A.1", "B.2"}, d.State().Images)
}

func TestSessionInvalidatedByReset(t *testing.T) {
	d := labDevice()
	d.cfg.DownTime = time.Hour
	ctx := context.Background()

	sess, err := d.Open()
	require.NoError(t, err)

	out, err := sess.Send(ctx, "copy run start")
	require.NoError(t, err)
	assert.Contains(t, out, "successful.")
	assert.False(t, strings.HasSuffix(out, "\n"))

	require.NoError(t, sess.SendNoWait(ctx, "reset -y"))
	_, err = sess.Send(ctx, "show software")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = d.Open()
	assert.ErrorIs(t, err, ErrDeviceDown, "重启期间无法登录")

	d.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	again, err := d.Open()
	require.NoError(t, err)
	_, err = again.Send(ctx, "show software")
	assert.NoError(t, err)
}
