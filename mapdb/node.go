package mapdb

// Content identifies the kind of a node.
type Content uint16

const (
	ContentStone          Content = 0
	ContentGrass          Content = 1
	ContentWater          Content = 2
	ContentTorch          Content = 3
	ContentTree           Content = 4
	ContentLeaves         Content = 5
	ContentGrassFootsteps Content = 6
	ContentMese           Content = 7
	ContentMud            Content = 8
	ContentWaterSource    Content = 9
	ContentCloud          Content = 10
	ContentCoalStone      Content = 11
	ContentWood           Content = 12
	ContentSand           Content = 13

	// ContentIgnore marks nodes whose data is not available, e.g. in blocks
	// that aren't loaded.
	ContentIgnore Content = 127
	ContentAir    Content = 126
)

type Node struct {
	Content Content
	Param   uint8
}

// Feature describes the static properties of a content id.
type Feature struct {
	Name     string
	Walkable bool
}

var features = map[Content]Feature{
	ContentStone:          {Name: "stone", Walkable: true},
	ContentGrass:          {Name: "grass", Walkable: true},
	ContentWater:          {Name: "water"},
	ContentTorch:          {Name: "torch"},
	ContentTree:           {Name: "tree", Walkable: true},
	ContentLeaves:         {Name: "leaves", Walkable: true},
	ContentGrassFootsteps: {Name: "grass_footsteps", Walkable: true},
	ContentMese:           {Name: "mese", Walkable: true},
	ContentMud:            {Name: "mud", Walkable: true},
	ContentWaterSource:    {Name: "water_source"},
	ContentCloud:          {Name: "cloud", Walkable: true},
	ContentCoalStone:      {Name: "coalstone", Walkable: true},
	ContentWood:           {Name: "wood", Walkable: true},
	ContentSand:           {Name: "sand", Walkable: true},
	ContentIgnore:         {Name: "ignore"},
	ContentAir:            {Name: "air"},
}

// Features returns the feature set of c. Unknown content is reported as a
// non walkable, unnamed node.
func Features(c Content) Feature {
	return features[c]
}

func (c Content) Walkable() bool {
	return features[c].Walkable
}

func (c Content) String() string {
	if f, found := features[c]; found {
		return f.Name
	}
	return "unknown"
}

// ContentByName returns the content with the given feature name.
func ContentByName(name string) (Content, bool) {
	for c, f := range features {
		if f.Name == name {
			return c, true
		}
	}
	return 0, false
}
