package config

import (
	"fmt"
)

// ReplayLockValue is stored under ReplayLockKey once a submission succeeded.
const ReplayLockValue = "SUBMITTED"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ReplayLockKey returns the device-scoped key marking a quiz as submitted.
func (r *CacheKeyStruct) ReplayLockKey(quizID, fingerprint string) string {
	return fmt.Sprintf("quiz_lock_%s_%s", quizID, fingerprint)
}

// AccessLeaseKey returns the device-scoped key holding the access window expiry.
func (r *CacheKeyStruct) AccessLeaseKey(quizID, fingerprint string) string {
	return fmt.Sprintf("quiz_access_%s_%s", quizID, fingerprint)
}

var CacheKey = NewCacheKeyStruct()
