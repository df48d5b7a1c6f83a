// Package cluster KV 键布局
//
// Swift/<cluster>/Members                       成员列表
// Swift/<cluster>/Jobs/<job>/Config             任务配置
// Swift/<cluster>/Jobs/<job>/Records/<recordId> 任务记录
package cluster

import "fmt"

const keyRoot = "Swift"

func membersKey(cluster string) string {
	return fmt.Sprintf("%s/%s/Members", keyRoot, cluster)
}

func jobsPrefix(cluster string) string {
	return fmt.Sprintf("%s/%s/Jobs/", keyRoot, cluster)
}

func jobTreeKey(cluster, job string) string {
	return fmt.Sprintf("%s/%s/Jobs/%s", keyRoot, cluster, job)
}

func jobConfigKey(cluster, job string) string {
	return fmt.Sprintf("%s/%s/Jobs/%s/Config", keyRoot, cluster, job)
}

func jobRecordKey(cluster, job, recordID string) string {
	return fmt.Sprintf("%s/%s/Jobs/%s/Records/%s", keyRoot, cluster, job, recordID)
}
