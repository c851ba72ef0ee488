package builtin

import (
	"github.com/talemachine/talemachine/internal/mutation"
	"github.com/talemachine/talemachine/internal/store"
	toolcore "github.com/talemachine/talemachine/internal/tool"
)

// RegisterAll wires every builtin tool into the registry.
func RegisterAll(r *toolcore.Registry, svc *mutation.Service, st store.Store) {
	r.Register(&SaveChapterTool{Service: svc})
	r.Register(&GetChapterByIDTool{Store: st})
	r.Register(&GetChapterByTitleTool{Store: st})
	r.Register(&GetAllChaptersTool{Store: st})
	r.Register(&DeleteChapterTool{Store: st})
	r.Register(&AttachImageTool{Service: svc})
	r.Register(&QueryStoryGraphTool{Service: svc})
}
