package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, topic, want string
	}{
		{"shop", "orders", "projects/shop/topics/orders"},
		{"shop", " orders ", "projects/shop/topics/orders"},
		{"shop", "projects/other/topics/orders", "projects/other/topics/orders"},
		{"", "orders", ""},
		{"shop", "", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, topicResourceName(tc.project, tc.topic), "%q/%q", tc.project, tc.topic)
	}
}

func TestResourceNamesDeduplicates(t *testing.T) {
	names, err := resourceNames("shop", []string{"orders", " orders", "projects/shop/topics/orders", "ops", ""})
	require.NoError(t, err)
	require.Equal(t, []string{"projects/shop/topics/orders", "projects/shop/topics/ops"}, names)

	_, err = resourceNames("shop", []string{" ", ""})
	require.ErrorIs(t, err, errNoTopics)
}

func TestNewClientValidatesBeforeDialing(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, []string{"orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "shop"}, nil, nil)
	require.ErrorIs(t, err, errNoTopics)
}

func TestUnconnectedClientIsSafe(t *testing.T) {
	var nilClient *Client
	for _, c := range []*Client{nilClient, {}} {
		require.Nil(t, c.Publisher("orders"))
		require.ErrorIs(t, c.Ping(context.Background()), errNotConnected)
		require.NoError(t, c.Close())
	}
}
