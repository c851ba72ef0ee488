package graph

// The vocabularies below are closed and shared across every story
// database. Keeping them fixed lets extraction results from different
// chapters merge cleanly instead of sprouting near-duplicate labels.

var NodeLabels = []string{
	"Person", "Character", "Creature", "Alien", "Robot", "AI", "Deity", "Spirit", "Undead", "Plant",
	"Organization", "Faction", "Family", "Kingdom", "Guild", "Cult", "Corporation", "Army", "Crew", "Race",
	"Location", "World", "City", "Building", "Room", "Region", "Universe", "Landmark", "Vehicle", "Spaceship",
	"Item", "Weapon", "Artifact", "Technology", "Book", "Clue", "Key", "Treasure", "Food", "Drug",
	"Event", "Scene", "Era", "Goal", "Obstacle", "Secret", "Prophecy", "Skill", "Law", "Disease",
}

var RelationshipTypes = []string{
	"LOVES", "HATES", "FEARS", "TRUSTS", "SUSPECTS", "ENVIES", "PITIES", "RESPECTS", "DESPISES", "ADMIRES",
	"WORSHIPS", "KNOWS", "REMEMBERS", "FORGETS", "IS_OBSESSED_WITH", "PARENT_OF", "CHILD_OF", "SIBLING_OF",
	"MARRIED_TO", "DIVORCED_FROM", "ANCESTOR_OF", "DESCENDANT_OF", "ADOPTED", "MENTORS", "APPRENTICE_OF",
	"FRIEND_OF", "ENEMY_OF", "RIVAL_OF", "LEADS", "MEMBER_OF", "FIGHTS", "KILLS", "WOUNDS", "CAPTURES",
	"TORTURES", "IMPRISONS", "HUNTED_BY", "AMBUSHES", "THREATENS", "DEFEATS", "BETRAYS", "REBELS_AGAINST",
	"DESTROYED", "SABOTAGES", "HELPS", "HEALS", "RESCUES", "PROTECTS", "ADVISES", "EMPLOYS", "SERVES",
	"SUMMONS", "REVIVES", "TALKS_TO", "ARGUES_WITH", "LIES_TO", "PERSUADES", "COMMANDS", "INFORMS",
	"BLACKMAILS", "INTERROGATES", "REVEALS", "HIDES", "INVESTIGATES", "DISCOVERS", "LIVES_IN", "BORN_IN",
	"DIED_AT", "VISITS", "TRAVELS_TO", "ESCAPES_FROM", "IS_LOCATED_AT", "CONTAINS", "BORDERS", "GUARDS",
	"OWNS", "STEALS", "FOUND", "LOST", "CREATED", "WROTE", "INVENTED", "WEARS", "USES", "CONSUMES",
	"CAUSES", "PREVENTS", "TRIGGERS", "SOLVES", "COMPLICATES", "MOTIVATES", "FULFILLS", "FAILS",
	"TRANSFORMS_INTO", "CASTS", "CURSES", "INFECTS", "HACKS", "PILOTS", "TELEPORTS_TO",
}

// NodeProperties and RelationshipProperties describe the optional
// property schema handed to the extraction prompt.
var NodeProperties = []string{
	"name (string): The primary identifier.",
	"description (string): A short summary of visual or narrative details.",
	"status (string): E.g., 'Alive', 'Destroyed', 'Hidden'.",
	"role (string): E.g., 'King', 'Protagonist', 'Antagonist'.",
	"age (string): The age or era of the entity.",
	"traits (list): Key personality or physical traits.",
}

var RelationshipProperties = []string{
	"context (string): Explains 'why' or 'how' connected.",
	"strength (integer): 1-10 scale of intensity.",
	"since (string): When this started.",
	"status (string): E.g., Active, Broken, Secret.",
}

var (
	nodeLabelSet        = toSet(NodeLabels)
	relationshipTypeSet = toSet(RelationshipTypes)
)

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// AllowedNodeLabel reports whether label belongs to the closed vocabulary.
func AllowedNodeLabel(label string) bool {
	_, ok := nodeLabelSet[label]
	return ok
}

// AllowedRelationshipType reports whether relType belongs to the closed vocabulary.
func AllowedRelationshipType(relType string) bool {
	_, ok := relationshipTypeSet[relType]
	return ok
}
