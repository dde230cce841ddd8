package cache

import "fmt"

func IdentityKey(name, tag, region string) string {
	return fmt.Sprintf("identity:%s:%s:%s", name, tag, region)
}

func DashboardKey(name, tag, region string) string {
	return fmt.Sprintf("dashboard:%s:%s:%s", name, tag, region)
}

func PopupKey(name, tag, region string) string {
	return fmt.Sprintf("popup:%s:%s:%s", name, tag, region)
}

func AnalysisKey(matchID string) string {
	return fmt.Sprintf("analysis:%s", matchID)
}
