// Package eventbus 集群事件总线类型定义
package eventbus

// Topic 事件主题
type Topic string

// 集群事件主题：成员、任务配置、任务记录、任务实例的加入/移除
const (
	TopicMemberJoin      Topic = "MemberJoin"
	TopicMemberRemove    Topic = "MemberRemove"
	TopicJobConfigJoin   Topic = "JobConfigJoin"
	TopicJobConfigRemove Topic = "JobConfigRemove"
	TopicJobRecordJoin   Topic = "JobRecordJoin"
	TopicJobRecordRemove Topic = "JobRecordRemove"
	TopicTaskJoin        Topic = "TaskJoin"
	TopicTaskRemove      Topic = "TaskRemove"
)

// Topics 全部主题（镜像器订阅用）
var Topics = []Topic{
	TopicMemberJoin,
	TopicMemberRemove,
	TopicJobConfigJoin,
	TopicJobConfigRemove,
	TopicJobRecordJoin,
	TopicJobRecordRemove,
	TopicTaskJoin,
	TopicTaskRemove,
}

// Handler 事件回调
//
// 回调在触发事件的协调循环上同步执行，不得阻塞；
// 阻塞的订阅者会推迟下一轮 reconcile。
type Handler func(payload interface{})

// Stream 镜像常量
const (
	// KeyClusterEvents Redis Stream 键前缀
	KeyClusterEvents = "swift_events:"

	// MaxStreamLength Stream 最大长度
	MaxStreamLength = 1000
)
