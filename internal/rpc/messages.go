package rpc

// Wire messages for HeapQueryService. These are hand-declared rather than
// protoc-generated (protoc can't run in this environment), but follow the
// generated-code shape: plain structs plus Get* accessors that are nil-safe
// on a nil receiver, so handlers can call req.GetHandle() without a nil
// check. Encoding is handled by the json codec in codec.go rather than the
// protobuf wire format.

// OpenDumpRequest opens (or reuses an already-opened) dump by path.
type OpenDumpRequest struct {
	DumpPath          string `json:"dump_path"`
	ComputeDominators bool   `json:"compute_dominators"`
	TrackInboundRefs  bool   `json:"track_inbound_refs"`
	DataDir           string `json:"data_dir"`
}

func (r *OpenDumpRequest) GetDumpPath() string {
	if r == nil {
		return ""
	}
	return r.DumpPath
}

// OpenDumpResponse carries the handle subsequent calls address this dump by.
type OpenDumpResponse struct {
	Handle             string `json:"handle"`
	ObjectCount        int64  `json:"object_count"`
	ClassCount         int64  `json:"class_count"`
	TotalHeapBytes     int64  `json:"total_heap_bytes"`
	DominatorsComputed bool   `json:"dominators_computed"`
}

// GetObjectRequest looks up one object by its dense in-index id (§6 Object).
type GetObjectRequest struct {
	Handle     string `json:"handle"`
	ObjectID32 int32  `json:"object_id32"`
}

func (r *GetObjectRequest) GetHandle() string {
	if r == nil {
		return ""
	}
	return r.Handle
}

func (r *GetObjectRequest) GetObjectID32() int32 {
	if r == nil {
		return 0
	}
	return r.ObjectID32
}

type GetObjectResponse struct {
	ObjectID32    int32  `json:"object_id32"`
	ClassName     string `json:"class_name"`
	ShallowBytes  int64  `json:"shallow_bytes"`
	RetainedBytes int64  `json:"retained_bytes"` // -1 if dominators weren't computed
	IsArray       bool   `json:"is_array"`
	ArrayLength   int32  `json:"array_length"`
}

// GetClassRequest looks up a class by its simple or qualified name (§6
// ClassByName).
type GetClassRequest struct {
	Handle    string `json:"handle"`
	ClassName string `json:"class_name"`
}

func (r *GetClassRequest) GetHandle() string {
	if r == nil {
		return ""
	}
	return r.Handle
}

func (r *GetClassRequest) GetClassName() string {
	if r == nil {
		return ""
	}
	return r.ClassName
}

type GetClassResponse struct {
	ClassID32     int32  `json:"class_id32"`
	Name          string `json:"name"`
	InstanceCount int64  `json:"instance_count"`
}

// FindPathToRootRequest asks for the shortest GC-root path to an object
// (§6 C5 FindPathToGcRoot).
type FindPathToRootRequest struct {
	Handle     string `json:"handle"`
	ObjectID32 int32  `json:"object_id32"`
}

func (r *FindPathToRootRequest) GetHandle() string {
	if r == nil {
		return ""
	}
	return r.Handle
}

func (r *FindPathToRootRequest) GetObjectID32() int32 {
	if r == nil {
		return 0
	}
	return r.ObjectID32
}

type FindPathToRootResponse struct {
	PathObjectID32s []int32 `json:"path_object_id32s"`
	Found           bool    `json:"found"`
}

// ComputeDominatorsRequest triggers C4 on an already-open dump.
type ComputeDominatorsRequest struct {
	Handle string `json:"handle"`
}

func (r *ComputeDominatorsRequest) GetHandle() string {
	if r == nil {
		return ""
	}
	return r.Handle
}

type ComputeDominatorsResponse struct {
	Approximate  bool   `json:"approximate"`
	ObjectCount  int64  `json:"object_count"`
	ElapsedMs    int64  `json:"elapsed_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}
