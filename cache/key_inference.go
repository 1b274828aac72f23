package cache

// Args are the arguments of a construction request: positional values in
// Descriptor.Fields order plus keyword values by column or relation name.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// Pos builds positional arguments.
func Pos(values ...any) Args {
	return Args{Positional: values}
}

// Kw builds keyword arguments.
func Kw(values map[string]any) Args {
	return Args{Keyword: values}
}

// With returns a copy of a with an extra keyword argument.
func (a Args) With(name string, value any) Args {
	kw := make(map[string]any, len(a.Keyword)+1)
	for k, v := range a.Keyword {
		kw[k] = v
	}
	kw[name] = value
	return Args{Positional: a.Positional, Keyword: kw}
}

// InferKey derives the cache key a construction request would produce
// without constructing anything. The candidate is taken from the primary
// key's positional slot, then its column name, then its external name.
// Entity candidates are reduced to their own primary key. ok is false when
// no key can be determined; callers must then skip the cache.
//
// Zero values (0, "", uuid.Nil) and nil pointers count as no key, since
// they mark a record the database has not assigned an id yet. An entity
// whose real primary key is the zero value is therefore never cached.
func InferKey(d *Descriptor, args Args) (key any, ok bool) {
	if d == nil {
		return nil, false
	}

	candidate, found := keyCandidate(d, args)
	if !found {
		return nil, false
	}
	return d.NormalizeKey(candidate)
}

func keyCandidate(d *Descriptor, args Args) (any, bool) {
	if pos := d.PKPosition(); pos >= 0 && pos < len(args.Positional) {
		return args.Positional[pos], true
	}
	if v, ok := args.Keyword[d.PK.AttName]; ok {
		return v, true
	}
	if d.PK.Name != d.PK.AttName {
		if v, ok := args.Keyword[d.PK.Name]; ok {
			return v, true
		}
	}
	return nil, false
}
