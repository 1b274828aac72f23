package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/uptrace/bun"
)

// Retention decides how strongly a scope holds the instances of a class.
type Retention int

const (
	// RetentionReclaimable entries may be dropped by the backing table at
	// any time. A dropped entry behaves exactly like an evicted one.
	RetentionReclaimable Retention = iota

	// RetentionStrong entries stay until they are evicted or their table is
	// reset.
	RetentionStrong
)

func (r Retention) String() string {
	switch r {
	case RetentionReclaimable:
		return "reclaimable"
	case RetentionStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// Keyed is implemented by values that stand for an entity during key
// inference without being a registered struct.
type Keyed interface {
	PrimaryKey() any
}

// Field is one slot of an entity's canonical constructor.
type Field struct {
	GoName string
	// Name is the external name. It differs from AttName when the field is
	// the column of a belongs-to relation (owner vs owner_id).
	Name    string
	AttName string
	Index   []int
	Type    reflect.Type
	PK      bool
}

type relation struct {
	name   string
	index  []int
	typ    reflect.Type
	column string
}

// Descriptor describes a cacheable entity type. Descriptors are created by a
// Registry and are immutable once registered.
type Descriptor struct {
	Type      reflect.Type
	Name      string
	Table     string
	Retention Retention

	// Fields lists the constructor slots in declaration order.
	Fields []Field
	// PK is the first primary key field. Composite keys are reduced to it.
	PK  Field
	PKs []Field

	registry  *Registry
	embedded  []reflect.Type // top level embedded structs, in order
	byColumn  map[string]int
	relations map[string]relation

	pkPos     int
	pkPosOnce sync.Once
}

// PKPosition returns the positional slot of the primary key, or -1. The
// value is resolved on first use and memoized.
func (d *Descriptor) PKPosition() int {
	d.pkPosOnce.Do(func() {
		d.pkPos = -1
		for i, f := range d.Fields {
			if f.AttName == d.PK.AttName {
				d.pkPos = i
				break
			}
		}
	})
	return d.pkPos
}

// Class returns the package qualified type name. Unlike Table it is unique
// per registered type.
func (d *Descriptor) Class() string {
	return d.Type.PkgPath() + "." + d.Type.Name()
}

// Parent returns the registered entity this one embeds, if any.
// Embedded helpers that are not registered are skipped.
func (d *Descriptor) Parent() (*Descriptor, bool) {
	if d.registry == nil {
		return nil, false
	}
	for _, typ := range d.embedded {
		if p, ok := d.registry.Lookup(typ); ok {
			return p, true
		}
	}
	return nil, false
}

// Children returns the registered entities embedding this one.
func (d *Descriptor) Children() []*Descriptor {
	if d.registry == nil {
		return nil
	}
	return d.registry.Children(d)
}

// KeyOf returns the primary key value of instance. The boolean is false for
// foreign types, nil pointers and unassigned (zero) keys.
func (d *Descriptor) KeyOf(instance any) (any, bool) {
	v, ok := d.structValue(instance)
	if !ok {
		return nil, false
	}
	return normalizeKey(v.FieldByIndex(d.PK.Index).Interface())
}

// NormalizeKey turns a key candidate into a scalar key. Entity candidates
// are replaced by their own primary key, one level deep.
func (d *Descriptor) NormalizeKey(candidate any) (any, bool) {
	if key, ok := d.entityKey(candidate); ok {
		return normalizeKey(key)
	}
	return normalizeKey(candidate)
}

func (d *Descriptor) entityKey(candidate any) (any, bool) {
	if k, ok := candidate.(Keyed); ok {
		return k.PrimaryKey(), true
	}
	if d.registry == nil {
		return nil, false
	}
	other, ok := d.registry.DescriptorOf(candidate)
	if !ok {
		return nil, false
	}
	key, ok := other.KeyOf(candidate)
	return key, ok
}

func (d *Descriptor) structValue(instance any) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != d.Type {
		return reflect.Value{}, false
	}
	return v, true
}

// Build is the canonical constructor: it allocates a new instance and fills
// it from positional values (in Fields order) and keyword values (by column
// or relation name). Keyword entities bound to a relation set both the
// relation and its column.
func (d *Descriptor) Build(args Args) (any, error) {
	if len(args.Positional) > len(d.Fields) {
		return nil, errConstructArgs(d.Name,
			fmt.Sprintf("takes %d positional arguments but %d were given", len(d.Fields), len(args.Positional)))
	}

	ptr := reflect.New(d.Type)
	target := ptr.Elem()

	for i, arg := range args.Positional {
		if err := d.assign(target, d.Fields[i], arg); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(args.Keyword))
	for name := range args.Keyword {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		arg := args.Keyword[name]
		if idx, ok := d.byColumn[name]; ok {
			if idx < len(args.Positional) {
				return nil, errConstructArgs(d.Name, fmt.Sprintf("got multiple values for %q", name))
			}
			if err := d.assign(target, d.Fields[idx], arg); err != nil {
				return nil, err
			}
			continue
		}
		if rel, ok := d.relations[name]; ok {
			if err := d.assignRelation(target, rel, arg); err != nil {
				return nil, err
			}
			continue
		}
		return nil, errConstructArgs(d.Name, fmt.Sprintf("unexpected keyword argument %q", name))
	}

	return ptr.Interface(), nil
}

func (d *Descriptor) assign(target reflect.Value, f Field, arg any) error {
	if arg == nil {
		return nil
	}

	val := reflect.ValueOf(arg)
	if !val.Type().AssignableTo(f.Type) {
		if key, ok := d.entityKey(arg); ok && key != nil {
			val = reflect.ValueOf(key)
		}
	}

	dst := target.FieldByIndex(f.Index)
	switch {
	case val.Type().AssignableTo(f.Type):
		dst.Set(val)
	case sameFamily(val.Type(), f.Type) && val.Type().ConvertibleTo(f.Type):
		dst.Set(val.Convert(f.Type))
	default:
		return errConstructArgs(d.Name, fmt.Sprintf("cannot use %s as %s for %q", val.Type(), f.Type, f.AttName))
	}
	return nil
}

func (d *Descriptor) assignRelation(target reflect.Value, rel relation, arg any) error {
	if arg == nil {
		return nil
	}

	assigned := false
	if val := reflect.ValueOf(arg); val.Type().AssignableTo(rel.typ) {
		target.FieldByIndex(rel.index).Set(val)
		assigned = true
	}

	if idx, ok := d.byColumn[rel.column]; ok {
		if key, ok := d.NormalizeKey(arg); ok {
			return d.assign(target, d.Fields[idx], key)
		}
	}

	if !assigned {
		return errConstructArgs(d.Name, fmt.Sprintf("cannot use %T for relation %q", arg, rel.name))
	}
	return nil
}

func sameFamily(a, b reflect.Type) bool {
	return kindFamily(a.Kind()) != 0 && kindFamily(a.Kind()) == kindFamily(b.Kind())
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	default:
		return 0
	}
}

// normalizeKey dereferences scalar pointers and rejects nil and zero keys.
// A zero primary key is treated as unassigned, see InferKey.
func normalizeKey(key any) (any, bool) {
	v := reflect.ValueOf(key)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || v.IsZero() {
		return nil, false
	}
	return v.Interface(), true
}

var baseModelType = reflect.TypeOf(bun.BaseModel{})

type structTag struct {
	name    string
	skip    bool
	options map[string]string
	flags   map[string]bool
}

func parseTag(raw string) structTag {
	t := structTag{options: map[string]string{}, flags: map[string]bool{}}
	if raw == "-" {
		t.skip = true
		return t
	}
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, ":"); ok {
			if _, seen := t.options[k]; !seen {
				t.options[k] = v
			}
			continue
		}
		if i == 0 {
			t.name = part
			continue
		}
		t.flags[part] = true
	}
	return t
}

func describe(typ reflect.Type, cfg registerConfig) (*Descriptor, error) {
	d := &Descriptor{
		Type:      typ,
		Name:      typ.Name(),
		Table:     tableName(typ.Name()),
		Retention: cfg.retention,
		byColumn:  map[string]int{},
		relations: map[string]relation{},
	}

	d.collect(typ, nil)
	if cfg.table != "" {
		d.Table = cfg.table
	}

	for i := range d.Fields {
		if d.Fields[i].PK {
			d.PKs = append(d.PKs, d.Fields[i])
		}
	}
	if len(d.PKs) == 0 {
		for i := range d.Fields {
			if d.Fields[i].GoName == "ID" {
				d.Fields[i].PK = true
				d.PKs = append(d.PKs, d.Fields[i])
				break
			}
		}
	}
	if len(d.PKs) == 0 {
		return nil, errMissingPrimaryKey(d.Name)
	}

	for _, rel := range d.relations {
		if rel.column != d.PKs[0].AttName {
			continue
		}
		d.PKs[0].Name = rel.name
		d.Fields[d.byColumn[rel.column]].Name = rel.name
	}
	d.PK = d.PKs[0]

	return d, nil
}

func (d *Descriptor) collect(typ reflect.Type, index []int) {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		path := append(append([]int(nil), index...), i)
		tag := parseTag(sf.Tag.Get("bun"))

		if sf.Type == baseModelType {
			// only the outermost model names the table
			if table := tag.options["table"]; table != "" && len(index) == 0 {
				d.Table = table
			}
			continue
		}
		if tag.skip {
			continue
		}
		if sf.Anonymous {
			if sf.Type.Kind() == reflect.Struct {
				if len(index) == 0 {
					d.embedded = append(d.embedded, sf.Type)
				}
				d.collect(sf.Type, path)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		if _, ok := tag.options["rel"]; ok {
			column, _, _ := strings.Cut(tag.options["join"], "=")
			name := toSnake(sf.Name)
			d.relations[name] = relation{name: name, index: path, typ: sf.Type, column: column}
			continue
		}

		column := tag.name
		if column == "" {
			column = columnName(sf.Name)
		}
		if _, dup := d.byColumn[column]; dup {
			continue
		}

		d.byColumn[column] = len(d.Fields)
		d.Fields = append(d.Fields, Field{
			GoName:  sf.Name,
			Name:    column,
			AttName: column,
			Index:   path,
			Type:    sf.Type,
			PK:      tag.flags["pk"],
		})
	}
}
