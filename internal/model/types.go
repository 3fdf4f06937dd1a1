package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Individual is one candidate solution tracked by the generational loop.
type Individual interface {
	Identity() uint64
	Score() Fitness
	SetScore(Fitness)
	Species() int
	SetSpecies(int)
}

// GeneType tags the value shape and sampling rules of a gene.
type GeneType string

const (
	GeneInt                  GeneType = "int"
	GeneFloat                GeneType = "float"
	GeneLinearMembership     GeneType = "linear_membership"
	GeneTriangularMembership GeneType = "triangular_membership"
	GeneEntryCondition       GeneType = "entry_condition"
)

// Gene is one named, typed, bounded parameter of a fuzzy genome. Scalar
// genes keep a single element in Value; membership and entry genes keep
// their ordered nodes.
type Gene struct {
	ID    uint64    `json:"id"`
	Name  string    `json:"name"`
	Type  GeneType  `json:"type"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
	Value []float64 `json:"value"`
}

// Genome is an ordered list of genes with a name index.
type Genome struct {
	ID      uint64  `json:"id"`
	Genes   []Gene  `json:"genes"`
	Fitness Fitness `json:"fitness"`
	Cluster int     `json:"cluster"`

	index map[string]int
}

func (g *Genome) Identity() uint64   { return g.ID }
func (g *Genome) Score() Fitness     { return g.Fitness }
func (g *Genome) SetScore(f Fitness) { g.Fitness = f }
func (g *Genome) Species() int       { return g.Cluster }
func (g *Genome) SetSpecies(c int)   { g.Cluster = c }

// Reindex rebuilds the name lookup. Call after any change to Genes.
func (g *Genome) Reindex() {
	g.index = make(map[string]int, len(g.Genes))
	for i, gene := range g.Genes {
		g.index[gene.Name] = i
	}
}

// Gene returns the gene with the given name.
func (g *Genome) Gene(name string) (Gene, bool) {
	if g.index == nil || len(g.index) != len(g.Genes) {
		g.Reindex()
	}
	i, ok := g.index[name]
	if !ok {
		return Gene{}, false
	}
	return g.Genes[i], true
}

// Layer is a dense layer: Weights is rows (inputs) by columns (outputs).
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

func (l Layer) Inputs() int  { return len(l.Weights) }
func (l Layer) Outputs() int { return len(l.Bias) }

type Network struct {
	ID      uint64  `json:"id"`
	Layers  []Layer `json:"layers"`
	Fitness Fitness `json:"fitness"`
	Cluster int     `json:"cluster"`
}

func (n *Network) Identity() uint64   { return n.ID }
func (n *Network) Score() Fitness     { return n.Fitness }
func (n *Network) SetScore(f Fitness) { n.Fitness = f }
func (n *Network) Species() int       { return n.Cluster }
func (n *Network) SetSpecies(c int)   { n.Cluster = c }

const (
	VariantNetwork = "network"
	VariantFuzzy   = "fuzzy"
)

// Population is a checkpointable snapshot of one generation. Exactly one of
// Networks or Genomes is populated, matching Variant.
type Population struct {
	VersionedRecord
	ID           uint64     `json:"id"`
	RunID        string     `json:"run_id"`
	Variant      string     `json:"variant"`
	Generation   int        `json:"generation"`
	MutationRate float64    `json:"mutation_rate"`
	NextID       uint64     `json:"next_id"`
	Networks     []*Network `json:"networks,omitempty"`
	Genomes      []*Genome  `json:"genomes,omitempty"`
}

// Size returns the number of individuals held by the snapshot.
func (p Population) Size() int {
	if p.Variant == VariantFuzzy {
		return len(p.Genomes)
	}
	return len(p.Networks)
}

// CheckpointInfo describes one stored checkpoint without its payload.
type CheckpointInfo struct {
	RunID      string `json:"run_id"`
	Generation int    `json:"generation"`
	Variant    string `json:"variant"`
	Size       int    `json:"size"`
	Bytes      int64  `json:"bytes"`
	SavedAt    int64  `json:"saved_at_unix"`
}

// GenerationDiagnostics summarises one evaluated generation.
type GenerationDiagnostics struct {
	RunID             string  `json:"run_id"`
	Generation        int     `json:"generation"`
	AverageFitness    float64 `json:"average_fitness"`
	BestFitness       Fitness `json:"best_fitness"`
	ValidCount        int     `json:"valid_count"`
	SpeciesCount      int     `json:"species_count"`
	MutationRate      float64 `json:"mutation_rate"`
	Selection         string  `json:"selection"`
	SelectedAvg       float64 `json:"selected_avg"`
	PopulationSize    int     `json:"population_size"`
	EvaluationSeconds float64 `json:"evaluation_seconds"`
}
