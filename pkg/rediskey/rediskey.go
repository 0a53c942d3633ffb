package rediskey

import "fmt"

// Key namespaces shared by the API and the worker.
const (
	IdempotencyPrefix = "idem"
	LeaderboardPrefix = "leaderboard"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildOrderOperationKey returns "idem:order:{orderID}:{operation}"
func BuildOrderOperationKey(orderID, operation string) string {
	return NamespaceKey(IdempotencyPrefix, fmt.Sprintf("order:%s:%s", orderID, operation))
}

// BuildRewardClaimKey returns "idem:claim:{repID}:{rewardID}"
func BuildRewardClaimKey(repID, rewardID string) string {
	return NamespaceKey(IdempotencyPrefix, fmt.Sprintf("claim:%s:%s", repID, rewardID))
}

// BuildLeaderboardKey returns "leaderboard:{orgID}"
func BuildLeaderboardKey(orgID string) string {
	return NamespaceKey(LeaderboardPrefix, orgID)
}
