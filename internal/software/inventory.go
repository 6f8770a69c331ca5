package software

import "context"

const cmdShowSoftware = "show software"

// Query 查询设备镜像清单，每次返回全新快照
func (m *Manager) Query(ctx context.Context) (*InventorySnapshot, error) {
	snap, err := runParsed(ctx, m, "query", cmdShowSoftware, 0, ParseInventory)
	if err != nil {
		return nil, err
	}
	m.log.WithField("primary", snap.Primary).
		WithField("backup", snap.Backup).
		WithField("next_boot", snap.NextBoot).
		Debugf("inventory: %d images", len(snap.Images))
	return snap, nil
}
