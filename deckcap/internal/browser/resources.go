package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests whose type is in types. Slides never need
// media, and autoplaying video makes captures nondeterministic.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blocked := blockSet(types)
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked[resourceKey(string(h.Request.Type()))] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[resourceKey(t)] = true
	}
	return set
}

// resourceKey maps CDP resource types and config names ("images",
// "Stylesheet") to one spelling.
func resourceKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "images":
		return "image"
	case "fonts":
		return "font"
	case "stylesheets":
		return "stylesheet"
	case "scripts":
		return "script"
	}
	return s
}
