package store

import "sort"

// SortInvites orders invites oldest first, ties broken by id. Map-backed
// drivers use it so listings are deterministic.
func SortInvites(invites []*Invite) {
	sort.SliceStable(invites, func(i, j int) bool {
		if invites[i].CreatedAt != invites[j].CreatedAt {
			return invites[i].CreatedAt < invites[j].CreatedAt
		}
		return invites[i].ID < invites[j].ID
	})
}

// SortVendors orders vendors oldest first, ties broken by id.
func SortVendors(vendors []*Vendor) {
	sort.SliceStable(vendors, func(i, j int) bool {
		if vendors[i].CreatedAt != vendors[j].CreatedAt {
			return vendors[i].CreatedAt < vendors[j].CreatedAt
		}
		return vendors[i].ID < vendors[j].ID
	})
}
