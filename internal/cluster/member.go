// Package cluster 成员模型
package cluster

import (
	"encoding/json"
	"fmt"
	"time"
)

// MemberRole 成员角色
type MemberRole string

const (
	// RoleManager 集群中唯一的管理者：创建任务记录、发布任务配置
	RoleManager MemberRole = "Manager"
	// RoleWorker 通过任务记录发现并执行分配给自己的任务
	RoleWorker MemberRole = "Worker"
)

// 成员在线状态
const (
	StatusOffline = 0
	StatusOnline  = 1
)

// 离线成员的保留时长，超过后从成员列表中清除
const offlineRetention = 3 * time.Hour

// Member 集群成员
//
// 以稳定的网络标识（约定为本机 IPv4 地址）作为 id。
// cluster 是非拥有性回引用，只用于查找，不参与序列化。
type Member struct {
	ID                string     `json:"id"`
	Role              MemberRole `json:"role"`
	Status            int        `json:"status"`
	FirstRegisterTime time.Time  `json:"firstRegisterTime"`
	OnlineTime        time.Time  `json:"onlineTime"`
	OfflineTime       *time.Time `json:"offlineTime,omitempty"`

	cluster *Cluster
}

// IsOnline 是否在线
func (m *Member) IsOnline() bool {
	return m.Status == StatusOnline
}

// IsManager 是否为 Manager
func (m *Member) IsManager() bool {
	return m.Role == RoleManager
}

// Cluster 返回成员所属集群（Register 返回的成员和成员 reconcile 收录的成员持有；
// 直接从 KV 解码的成员为 nil）
func (m *Member) Cluster() *Cluster {
	return m.cluster
}

// String 日志用简短描述
func (m *Member) String() string {
	return fmt.Sprintf("%s(%s,status=%d)", m.ID, m.Role, m.Status)
}

// decodeMembers 解码成员列表，空值视为空列表
func decodeMembers(value []byte) ([]*Member, error) {
	if len(value) == 0 {
		return []*Member{}, nil
	}
	var members []*Member
	if err := json.Unmarshal(value, &members); err != nil {
		return nil, fmt.Errorf("failed to unmarshal members: %w", err)
	}
	return members, nil
}

// encodeMembers 编码成员列表
func encodeMembers(members []*Member) ([]byte, error) {
	data, err := json.Marshal(members)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal members: %w", err)
	}
	return data, nil
}
