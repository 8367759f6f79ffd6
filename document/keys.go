package document

import (
	"strconv"
	"strings"
)

// Key prefixes inside the shared kvstore, scoped per collection by
// namespacing every key with the collection name. Pebble has no column
// families, so the collection name doubles as the namespace discriminator.
const (
	prefDoc     = "doc:"
	prefIdxMeta = "idx_meta:"
	prefIdx     = "idx:"
	prefTTLMeta = "ttl_meta:"
	prefBlob    = "blo:"
	prefStats   = "stats:count"
	prefColType = "collection:type"
	prefGeoMeta = "geo_meta:"
	prefGeo     = "geo:"
	prefFTMeta  = "ft_meta:"
	prefFTTerm  = "ft_term:"
	prefFTGram  = "ft:"
	prefVecMeta = "vec_meta:"
	prefVecData = "vec_data:"
)

func nsKey(coll, suffix string) []byte {
	var b strings.Builder
	b.WriteString(coll)
	b.WriteByte(0)
	b.WriteString(suffix)
	return []byte(b.String())
}

func docKey(coll, key string) []byte  { return nsKey(coll, prefDoc+key) }
func docPrefix(coll string) []byte    { return nsKey(coll, prefDoc) }
func idxMetaKey(coll, name string) []byte { return nsKey(coll, prefIdxMeta+name) }
func idxMetaPrefix(coll string) []byte    { return nsKey(coll, prefIdxMeta) }

func idxEntryKey(coll, name, encFields, docKeyStr string) []byte {
	return nsKey(coll, prefIdx+name+":"+encFields+":"+docKeyStr)
}

func idxEntryPrefix(coll, name, encFields string) []byte {
	return nsKey(coll, prefIdx+name+":"+encFields+":")
}

func idxNamePrefix(coll, name string) []byte {
	return nsKey(coll, prefIdx+name+":")
}

func ttlMetaKey(coll string) []byte { return nsKey(coll, prefTTLMeta) }

func blobChunkKey(coll, key string, chunk int) []byte {
	return nsKey(coll, prefBlob+key+":"+strconv.Itoa(chunk))
}

func blobKeyPrefix(coll, key string) []byte {
	return nsKey(coll, prefBlob+key+":")
}

func statsKey(coll string) []byte   { return nsKey(coll, prefStats) }
func colTypeKey(coll string) []byte { return nsKey(coll, prefColType) }

func geoMetaKey(coll, name string) []byte  { return nsKey(coll, prefGeoMeta+name) }
func geoMetaPrefix(coll string) []byte     { return nsKey(coll, prefGeoMeta) }
func geoEntryKey(coll, name, docKeyStr string) []byte {
	return nsKey(coll, prefGeo+name+":"+docKeyStr)
}
func geoEntryPrefix(coll, name string) []byte { return nsKey(coll, prefGeo+name+":") }

func ftMetaKey(coll, name string) []byte { return nsKey(coll, prefFTMeta+name) }
func ftMetaPrefix(coll string) []byte    { return nsKey(coll, prefFTMeta) }

func ftTermKey(coll, name, term, docKeyStr string) []byte {
	return nsKey(coll, prefFTTerm+name+":"+term+":"+docKeyStr)
}
func ftTermPrefix(coll, name, term string) []byte {
	return nsKey(coll, prefFTTerm+name+":"+term+":")
}
func ftTermAllPrefix(coll, name string) []byte { return nsKey(coll, prefFTTerm+name+":") }

func ftGramKey(coll, name, gram, docKeyStr string) []byte {
	return nsKey(coll, prefFTGram+name+":"+gram+":"+docKeyStr)
}
func ftGramPrefix(coll, name, gram string) []byte {
	return nsKey(coll, prefFTGram+name+":"+gram+":")
}
func ftGramAllPrefix(coll, name string) []byte { return nsKey(coll, prefFTGram+name+":") }

func vecMetaKey(coll, name string) []byte { return nsKey(coll, prefVecMeta+name) }
func vecMetaPrefix(coll string) []byte    { return nsKey(coll, prefVecMeta) }
func vecDataKey(coll, name, docKeyStr string) []byte {
	return nsKey(coll, prefVecData+name+":"+docKeyStr)
}
func vecDataPrefix(coll, name string) []byte { return nsKey(coll, prefVecData+name+":") }
