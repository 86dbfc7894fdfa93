package schema

// Builtin default catalogue. These schemas apply when an owner has not
// registered anything for the entity type. They are deliberately small;
// auto-enhancement grows them per owner as fragments qualify.

var builtinCatalogue = map[string]map[string]FieldDef{
	"task": {
		"title":    {Type: "string", MergePolicy: MergeHighestPriority},
		"status":   {Type: "string", MergePolicy: MergeHighestPriority},
		"due_date": {Type: "date", MergePolicy: MergeHighestPriority},
		"notes":    {Type: "string", MergePolicy: MergeLastWrite},
	},
	"person": {
		"name":  {Type: "string", MergePolicy: MergeHighestPriority},
		"email": {Type: "string", MergePolicy: MergeLastWrite},
		"phone": {Type: "string", MergePolicy: MergeLastWrite},
	},
	"document": {
		"title":     {Type: "string", MergePolicy: MergeHighestPriority},
		"author":    {Type: "string", MergePolicy: MergeHighestPriority},
		"mime_type": {Type: "string", MergePolicy: MergeFirstWrite},
	},
	"transaction": {
		"date":        {Type: "date", MergePolicy: MergeFirstWrite},
		"amount":      {Type: "number", MergePolicy: MergeHighestPriority},
		"currency":    {Type: "string", MergePolicy: MergeFirstWrite},
		"description": {Type: "string", MergePolicy: MergeHighestPriority},
		"merchant":    {Type: "string", MergePolicy: MergeHighestPriority},
	},
	"organization": {
		"name":   {Type: "string", MergePolicy: MergeHighestPriority},
		"domain": {Type: "string", MergePolicy: MergeLastWrite},
	},
	"note": {
		"title": {Type: "string", MergePolicy: MergeHighestPriority},
		"body":  {Type: "string", MergePolicy: MergeLastWrite},
	},
}

// Builtin returns the default-catalogue schema for an entity type, or nil
// when the type has no builtin. The returned schema is a copy; callers may
// not mutate the catalogue.
func Builtin(entityType string) *Schema {
	defs, ok := builtinCatalogue[entityType]
	if !ok {
		return nil
	}
	fields := make(map[string]FieldDef, len(defs))
	for k, d := range defs {
		fields[k] = d
	}
	return &Schema{
		EntityType: entityType,
		Version:    BuiltinVersion,
		Fields:     fields,
		Active:     true,
	}
}

// BuiltinTypes lists the entity types covered by the default catalogue.
func BuiltinTypes() []string {
	types := make([]string, 0, len(builtinCatalogue))
	for t := range builtinCatalogue {
		types = append(types, t)
	}
	return types
}
