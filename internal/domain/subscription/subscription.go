// Package subscription defines feed list interchange models.
package subscription

import "strings"

// Subscription represents a single feed entry of a feed list.
type Subscription struct {
	URL   string
	Title string
	// Group is the folder name; empty means unfiled.
	Group string
}

// FeedGroup represents a named collection of subscriptions.
type FeedGroup struct {
	Name  string
	Feeds []Subscription
}

// Groups collects subscriptions into folders, keeping first-seen order.
// Unfiled subscriptions are returned separately.
func Groups(subs []Subscription) ([]FeedGroup, []Subscription) {
	var groups []FeedGroup
	var unfiled []Subscription
	index := map[string]int{}
	for _, s := range subs {
		name := strings.TrimSpace(s.Group)
		if name == "" {
			unfiled = append(unfiled, s)
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, FeedGroup{Name: name})
		}
		groups[i].Feeds = append(groups[i].Feeds, s)
	}
	return groups, unfiled
}

// GroupNames returns the distinct non-empty folder names in order.
func GroupNames(subs []Subscription) []string {
	groups, _ := Groups(subs)
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	return names
}
