package redis

import (
	"fmt"

	"spacegate/internal/core/domain"
)

const keyPrefix = "spacegate:"

func spaceKey(id domain.SpaceID) string {
	return keyPrefix + "space:" + string(id)
}

func participantsKey(id domain.SpaceID) string {
	return fmt.Sprintf("%sspace:%s:participants", keyPrefix, id)
}

func credentialKey(user domain.UserID, provider domain.Provider) string {
	return fmt.Sprintf("%scredential:%s:%s", keyPrefix, user, provider)
}

func metadataKey(provider domain.Provider, externalID string) string {
	return fmt.Sprintf("%smetadata:%s:%s", keyPrefix, provider, externalID)
}
