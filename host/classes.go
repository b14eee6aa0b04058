package host

import "github.com/drpcorg/scenesync/classes"

var (
	Vector = classes.StructOf("Vector",
		&classes.Member{Name: "X", Type: classes.FloatType},
		&classes.Member{Name: "Y", Type: classes.FloatType},
		&classes.Member{Name: "Z", Type: classes.FloatType},
	)
	Rotator = classes.StructOf("Rotator",
		&classes.Member{Name: "Pitch", Type: classes.FloatType},
		&classes.Member{Name: "Yaw", Type: classes.FloatType},
		&classes.Member{Name: "Roll", Type: classes.FloatType},
	)
	LinearColor = classes.StructOf("LinearColor",
		&classes.Member{Name: "R", Type: classes.FloatType},
		&classes.Member{Name: "G", Type: classes.FloatType},
		&classes.Member{Name: "B", Type: classes.FloatType},
		&classes.Member{Name: "A", Type: classes.FloatType},
	)
	Mobility = classes.EnumOf("Mobility", "Static", "Stationary", "Movable")
	// Delegate has no type handler; fields of this type are never synced.
	Delegate = &classes.Type{Kind: classes.Unsupported, Name: "Delegate"}
)

const edit = classes.Edit

func actor(n classes.Native) *Actor         { return n.(*Actor) }
func component(n classes.Native) *Component { return n.(*Component) }
func asset(n classes.Native) *Asset         { return n.(*Asset) }

func newActorClasses() (base, mesh, light *classes.Class) {
	base = classes.NewClass("Actor", nil,
		&classes.Field{Name: "Label", Type: classes.StringType, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Label },
			Set: func(n classes.Native, v any) { actor(n).Label = v.(string) }},
		&classes.Field{Name: "Location", Type: Vector, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Location },
			Set: func(n classes.Native, v any) { actor(n).Location = v.(classes.Struct) }},
		&classes.Field{Name: "Rotation", Type: Rotator, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Rotation },
			Set: func(n classes.Native, v any) { actor(n).Rotation = v.(classes.Struct) }},
		&classes.Field{Name: "Scale", Type: Vector, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Scale },
			Set: func(n classes.Native, v any) { actor(n).Scale = v.(classes.Struct) }},
		&classes.Field{Name: "Hidden", Type: classes.BoolType, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Hidden },
			Set: func(n classes.Native, v any) { actor(n).Hidden = v.(bool) }},
		&classes.Field{Name: "Tags", Type: classes.ArrayOf(classes.NameType), Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Tags },
			Set: func(n classes.Native, v any) { actor(n).Tags = v.([]any) }},
		&classes.Field{Name: "Layers", Type: classes.SetOf(classes.NameType), Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Layers },
			Set: func(n classes.Native, v any) { actor(n).Layers = v.(*classes.OrderedSet) }},
		&classes.Field{Name: "Metadata", Type: classes.MapOf(classes.StringType, classes.StringType), Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Metadata },
			Set: func(n classes.Native, v any) { actor(n).Metadata = v.(*classes.OrderedMap) }},
		&classes.Field{Name: "Mobility", Type: Mobility, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Mobility },
			Set: func(n classes.Native, v any) { actor(n).Mobility = v.(string) }},
		&classes.Field{Name: "Target", Type: classes.ObjectOf("Actor"), Flags: edit,
			Get: func(n classes.Native) any { return nilIfEmpty(actor(n).Target) },
			Set: func(n classes.Native, v any) { actor(n).Target = nativeOrNil(v) }},
		&classes.Field{Name: "MaxHealth", Type: classes.IntType, Flags: edit | classes.DisableEditOnInstance,
			Get: func(n classes.Native) any { return actor(n).MaxHealth },
			Set: func(n classes.Native, v any) { actor(n).MaxHealth = v.(int32) }},
		&classes.Field{Name: "Guid", Type: classes.StringType, Flags: edit | classes.EditConst,
			Get: func(n classes.Native) any { return actor(n).Guid },
			Set: func(n classes.Native, v any) { actor(n).Guid = v.(string) }},
		&classes.Field{Name: "Seed", Type: classes.LongType,
			Get: func(n classes.Native) any { return actor(n).Seed },
			Set: func(n classes.Native, v any) { actor(n).Seed = v.(int64) }},
		&classes.Field{Name: "OnHit", Type: Delegate, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).OnHit },
			Set: func(n classes.Native, v any) { actor(n).OnHit, _ = v.(string) }},
	)
	mesh = classes.NewClass("StaticMeshActor", base,
		&classes.Field{Name: "Mesh", Type: classes.ObjectOf("Mesh"), Flags: edit,
			Get: func(n classes.Native) any { return nilIfEmpty(actor(n).Mesh) },
			Set: func(n classes.Native, v any) { actor(n).Mesh = nativeOrNil(v) }},
		&classes.Field{Name: "Materials", Type: classes.ArrayOf(classes.ObjectOf("Material")), Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Materials },
			Set: func(n classes.Native, v any) { actor(n).Materials = v.([]any) }},
	)
	light = classes.NewClass("PointLight", base,
		&classes.Field{Name: "Intensity", Type: classes.FloatType, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Intensity },
			Set: func(n classes.Native, v any) { actor(n).Intensity = v.(float32) }},
		&classes.Field{Name: "LightColor", Type: LinearColor, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).LightColor },
			Set: func(n classes.Native, v any) { actor(n).LightColor = v.(classes.Struct) }},
		&classes.Field{Name: "Radius", Type: classes.DoubleType, Flags: edit,
			Get: func(n classes.Native) any { return actor(n).Radius },
			Set: func(n classes.Native, v any) { actor(n).Radius = v.(float64) }},
	)
	return
}

func newComponentClasses() (base, mesh *classes.Class) {
	base = classes.NewClass("Component", nil,
		&classes.Field{Name: "Visible", Type: classes.BoolType, Flags: edit,
			Get: func(n classes.Native) any { return component(n).Visible },
			Set: func(n classes.Native, v any) { component(n).Visible = v.(bool) }},
		&classes.Field{Name: "RelativeLocation", Type: Vector, Flags: edit,
			Get: func(n classes.Native) any { return component(n).RelativeLocation },
			Set: func(n classes.Native, v any) { component(n).RelativeLocation = v.(classes.Struct) }},
	)
	mesh = classes.NewClass("MeshComponent", base,
		&classes.Field{Name: "Mesh", Type: classes.ObjectOf("Mesh"), Flags: edit,
			Get: func(n classes.Native) any { return nilIfEmpty(component(n).Mesh) },
			Set: func(n classes.Native, v any) { component(n).Mesh = nativeOrNil(v) }},
		&classes.Field{Name: "CastShadow", Type: classes.BoolType, Flags: edit,
			Get: func(n classes.Native) any { return component(n).CastShadow },
			Set: func(n classes.Native, v any) { component(n).CastShadow = v.(bool) }},
	)
	return
}

func newAssetClasses() (base, material, mesh, texture *classes.Class) {
	base = classes.NewClass("Asset", nil)
	material = classes.NewClass("Material", base,
		&classes.Field{Name: "Color", Type: LinearColor, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Color },
			Set: func(n classes.Native, v any) { asset(n).Color = v.(classes.Struct) }},
		&classes.Field{Name: "Roughness", Type: classes.FloatType, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Roughness },
			Set: func(n classes.Native, v any) { asset(n).Roughness = v.(float32) }},
		&classes.Field{Name: "Parent", Type: classes.ObjectOf("Material"), Flags: edit,
			Get: func(n classes.Native) any { return nilIfEmpty(asset(n).Parent) },
			Set: func(n classes.Native, v any) { asset(n).Parent = nativeOrNil(v) }},
		&classes.Field{Name: "Textures", Type: classes.ArrayOf(classes.ObjectOf("Texture")), Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Textures },
			Set: func(n classes.Native, v any) { asset(n).Textures = v.([]any) }},
	)
	mesh = classes.NewClass("Mesh", base,
		&classes.Field{Name: "Vertices", Type: classes.ArrayOf(classes.FloatType), Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Vertices },
			Set: func(n classes.Native, v any) { asset(n).Vertices = v.([]any) }},
		&classes.Field{Name: "Material", Type: classes.ObjectOf("Material"), Flags: edit,
			Get: func(n classes.Native) any { return nilIfEmpty(asset(n).Material) },
			Set: func(n classes.Native, v any) { asset(n).Material = nativeOrNil(v) }},
		&classes.Field{Name: "Bounds", Type: Vector, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Bounds },
			Set: func(n classes.Native, v any) { asset(n).Bounds = v.(classes.Struct) }},
	)
	texture = classes.NewClass("Texture", base,
		&classes.Field{Name: "Width", Type: classes.UIntType, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Width },
			Set: func(n classes.Native, v any) { asset(n).Width = v.(uint32) }},
		&classes.Field{Name: "Height", Type: classes.UIntType, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Height },
			Set: func(n classes.Native, v any) { asset(n).Height = v.(uint32) }},
		&classes.Field{Name: "Format", Type: classes.ByteType, Flags: edit,
			Get: func(n classes.Native) any { return asset(n).Format },
			Set: func(n classes.Native, v any) { asset(n).Format = v.(uint8) }},
	)
	return
}

func nilIfEmpty(n classes.Native) any {
	if classes.IsNil(n) {
		return nil
	}
	return n
}

func nativeOrNil(v any) classes.Native {
	if classes.IsNil(v) {
		return nil
	}
	return v.(classes.Native)
}
