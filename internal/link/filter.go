package link

import "strings"

// Filter 候选设备过滤：名称包含关键字（不区分大小写）或广播了目标服务
type Filter struct {
	NameContains string
	ServiceUUID  string
}

// Match 判断广播是否为候选设备；两个条件都为空时接受任何广播
func (f Filter) Match(adv Advertisement) bool {
	if f.NameContains == "" && f.ServiceUUID == "" {
		return true
	}
	if f.NameContains != "" && strings.Contains(strings.ToUpper(adv.Name), strings.ToUpper(f.NameContains)) {
		return true
	}
	if f.ServiceUUID != "" {
		for _, u := range adv.ServiceUUIDs {
			if strings.EqualFold(u, f.ServiceUUID) {
				return true
			}
		}
	}
	return false
}
