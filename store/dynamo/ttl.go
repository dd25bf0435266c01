package dynamo

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB deletes items past their TTL lazily, up to days later. With
// Config.TTLAttribute set, expired items that still exist are hidden from
// every read.

// ExpiresAt returns the TTL attribute value for t, in epoch seconds.
func ExpiresAt(t time.Time) int64 {
	return t.Unix()
}

// isExpired reports whether item carries a TTL at or before now.
func isExpired(item Record, attr string, now time.Time) bool {
	if attr == "" {
		return false
	}
	ttlAttr, exists := item[attr]
	if !exists {
		return false
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// withTTL adds the live-item condition for attr to expr.
func withTTL(expr expression, attr string, now time.Time) expression {
	if attr == "" {
		return expr
	}
	cond := "(attribute_not_exists(#ttl) OR #ttl > :now)"
	if expr.empty() {
		expr.condition = cond
	} else {
		expr.condition = "(" + expr.condition + ") AND " + cond
	}
	expr.names = mergeExprNames(expr.names, map[string]string{"#ttl": attr})
	expr.values = mergeExprValues(expr.values, map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	})
	return expr
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
