package tools

// Bouquet is a named preset enumerating a set of built-in tools.
// Selection by bouquet is exclusive; selection by mix is additive.
type Bouquet struct {
	Name         string
	BuiltInTools []string
}

// bouquets is the closed set of known presets. Unknown names fall through
// silently in the selection strategy.
var bouquets = map[string]Bouquet{
	"search": {
		Name: "search",
		BuiltInTools: []string{
			ModelSearch, DatasetSearch, SpaceSearch, PaperSearch, DocSearch,
		},
	},
	"docs": {
		Name:         "docs",
		BuiltInTools: []string{DocSearch, DocFetch},
	},
	"spaces": {
		Name:         "spaces",
		BuiltInTools: []string{SpaceSearch, UseSpace, DynamicSpace},
	},
	"hf_api": {
		Name: "hf_api",
		BuiltInTools: []string{
			Whoami, ModelSearch, ModelDetail, DatasetSearch, DatasetDetail,
			HubInspect, MarkerReadmeInclude,
		},
	},
	"jobs": {
		Name:         "jobs",
		BuiltInTools: []string{Jobs},
	},
	"all": {
		Name:         "all",
		BuiltInTools: AllIDs(),
	},
	// Presets below exist for integration testing only.
	"test_single": {
		Name:         "test_single",
		BuiltInTools: []string{Whoami},
	},
	"test_no_image": {
		Name:         "test_no_image",
		BuiltInTools: []string{Whoami, MarkerNoImageContent},
	},
}

// LookupBouquet returns a preset by name.
func LookupBouquet(name string) (Bouquet, bool) {
	b, ok := bouquets[name]
	return b, ok
}

// BouquetAll is the name of the preset that includes every built-in tool.
// With this bouquet, settings-provided Gradio endpoints stay included.
const BouquetAll = "all"
