// Package registry implements an accumulating store of protobuf schemas,
// queryable by fully-qualified type name.
package registry

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// wellKnownPrefix is the path prefix of the standard protobuf files, which
// can be resolved from the ones linked into the binary when a producer did
// not include them.
const wellKnownPrefix = "google/protobuf/"

// Registry accumulates file descriptors. Registrations are never removed.
// A Registry is not safe for concurrent use.
type Registry struct {
	files    *protoregistry.Files
	types    *dynamicpb.Types
	paths    map[string]protoreflect.FileDescriptor
	messages map[string]protoreflect.MessageDescriptor
	enums    map[string]protoreflect.EnumDescriptor
	logger   logrus.FieldLogger
}

// New creates an empty Registry
func New() *Registry {
	files := new(protoregistry.Files)
	return &Registry{
		files:    files,
		types:    dynamicpb.NewTypes(files),
		paths:    make(map[string]protoreflect.FileDescriptor),
		messages: make(map[string]protoreflect.MessageDescriptor),
		enums:    make(map[string]protoreflect.EnumDescriptor),
		logger:   logrus.StandardLogger(),
	}
}

// SetLogger sets the logger used to report schema problems that do not
// stop registration.
func (r *Registry) SetLogger(l logrus.FieldLogger) {
	r.logger = l
}

// Register decodes a serialized google.protobuf.FileDescriptorSet and adds
// all contained files.
func (r *Registry) Register(data []byte) error {
	set := new(descriptorpb.FileDescriptorSet)
	if err := proto.Unmarshal(data, set); err != nil {
		return errors.Wrap(err, "unmarshal file descriptor set")
	}
	return r.RegisterSet(set)
}

// RegisterSet adds all files in the set. The files do not need to be in
// dependency order. Imports that neither the set nor earlier registrations
// provide are left unresolved, see RegisterFile.
func (r *Registry) RegisterSet(set *descriptorpb.FileDescriptorSet) error {
	pending := set.GetFile()
	for len(pending) > 0 {
		var deferred []*descriptorpb.FileDescriptorProto
		for _, fdp := range pending {
			if len(r.missingDeps(fdp)) > 0 {
				deferred = append(deferred, fdp)
				continue
			}
			if err := r.RegisterFile(fdp); err != nil {
				return err
			}
		}
		if len(deferred) == len(pending) {
			// Stuck: register one file with its imports unresolved and retry
			// the rest, which may depend on it.
			if err := r.RegisterFile(pickUnresolvable(deferred)); err != nil {
				return err
			}
			deferred = deferred[1:]
		}
		pending = deferred
	}
	return nil
}

// pickUnresolvable moves the first file whose missing imports are not
// provided by any other pending file to the front of pending, and returns
// it. An import cycle leaves the order unchanged.
func pickUnresolvable(pending []*descriptorpb.FileDescriptorProto) *descriptorpb.FileDescriptorProto {
	inSet := make(map[string]bool, len(pending))
	for _, fdp := range pending {
		inSet[fdp.GetName()] = true
	}
	for i, fdp := range pending {
		if !lo.SomeBy(fdp.GetDependency(), func(dep string) bool { return inSet[dep] }) {
			pending[0], pending[i] = pending[i], pending[0]
			break
		}
	}
	return pending[0]
}

// RegisterFile adds a single file. Imports are resolved against earlier
// registrations. Imports that cannot be found, and the types referenced
// from them, become placeholders: the file is registered and its own
// types can be decoded, while decoding a field of an unresolved type fails.
// Types that were registered before under the same name are replaced.
func (r *Registry) RegisterFile(fdp *descriptorpb.FileDescriptorProto) error {
	opts := protodesc.FileOptions{AllowUnresolvable: true}
	fd, err := opts.New(fdp, r.importResolver(fdp))
	if err != nil {
		return errors.Wrapf(err, "file %q", fdp.GetName())
	}
	l := r.logger.WithField("file", fd.Path())
	if missing := r.missingDeps(fdp); len(missing) > 0 {
		l.WithField("imports", missing).Debug("Schema imports unknown files, their types stay unresolved")
	}
	if _, err := r.files.FindFileByPath(fd.Path()); errors.Is(err, protoregistry.NotFound) {
		if err := r.files.RegisterFile(fd); err != nil {
			// The path and name indexes still take the new definitions
			l.WithError(err).Debug("Schema redefines known types")
		}
	}
	r.paths[fd.Path()] = fd
	r.index(fd)
	return nil
}

// findFile returns the newest registered file at path, falling back to the
// standard google/protobuf files linked into the binary.
func (r *Registry) findFile(path string) (protoreflect.FileDescriptor, error) {
	if fd, ok := r.paths[path]; ok {
		return fd, nil
	}
	if strings.HasPrefix(path, wellKnownPrefix) {
		return protoregistry.GlobalFiles.FindFileByPath(path)
	}
	return nil, protoregistry.NotFound
}

// importResolver returns a registry holding only the files fdp imports,
// directly or through them, so names resolve to the definitions from the
// imported files even when other files redefine them.
func (r *Registry) importResolver(fdp *descriptorpb.FileDescriptorProto) *protoregistry.Files {
	local := new(protoregistry.Files)
	seen := make(map[string]bool)
	var add func(path string)
	add = func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		fd, err := r.findFile(path)
		if err != nil {
			return
		}
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			add(imports.Get(i).Path())
		}
		// A file that conflicts within the tree stays out, its types then
		// resolve as placeholders
		_ = local.RegisterFile(fd)
	}
	for _, dep := range fdp.GetDependency() {
		add(dep)
	}
	return local
}

func (r *Registry) missingDeps(fdp *descriptorpb.FileDescriptorProto) (missing []string) {
	for _, dep := range fdp.GetDependency() {
		if _, err := r.findFile(dep); err != nil {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (r *Registry) index(fd protoreflect.FileDescriptor) {
	r.indexEnums(fd.Enums())
	r.indexMessages(fd.Messages())
}

func (r *Registry) indexMessages(msgs protoreflect.MessageDescriptors) {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		r.messages[qualify(string(md.FullName()))] = md
		r.indexEnums(md.Enums())
		r.indexMessages(md.Messages())
	}
}

func (r *Registry) indexEnums(enums protoreflect.EnumDescriptors) {
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		r.enums[qualify(string(ed.FullName()))] = ed
	}
}

// FindMessage looks up a message type. The name may be given with or
// without the leading dot.
func (r *Registry) FindMessage(name string) (protoreflect.MessageDescriptor, bool) {
	md, ok := r.messages[qualify(name)]
	return md, ok
}

// FindEnum looks up an enum type. The name may be given with or without the
// leading dot.
func (r *Registry) FindEnum(name string) (protoreflect.EnumDescriptor, bool) {
	ed, ok := r.enums[qualify(name)]
	return ed, ok
}

// HasMessage reports if the message type is known
func (r *Registry) HasMessage(name string) bool {
	_, ok := r.FindMessage(name)
	return ok
}

// Names returns the sorted qualified names of all known message types
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.messages))
	for name := range r.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of known message types
func (r *Registry) Len() int {
	return len(r.messages)
}

// Files returns the underlying file registry
func (r *Registry) Files() *protoregistry.Files {
	return r.files
}

// NewMessage returns a new empty dynamic message of the named type
func (r *Registry) NewMessage(name string) (*dynamicpb.Message, error) {
	md, ok := r.FindMessage(name)
	if !ok {
		return nil, UnresolvedTypeError{Name: name}
	}
	return dynamicpb.NewMessage(md), nil
}

// qualify adds the leading dot used for fully-qualified protobuf names
func qualify(name string) string {
	if strings.HasPrefix(name, ".") {
		return name
	}
	return "." + name
}
