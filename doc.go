/*

Package ai4ar is a lazy, key-addressable access layer over a
multi-modal prostate MRI research corpus: per-case scans, anatomical
region masks, and per-lesion, per-rater delineations.

Vocabulary:

- case: one patient/study; owns a tree of images under one id
- id: case directory name, e.g. "007"
- fid: int-normalized id used in file names, e.g. "7"
- modality: one acquisition channel (adc, t2w, dce1, ...)
- rater: one annotator; rater id is the filename text after the last
  underscore, extension stripped
- keypath: slash-separated address of one leaf in a case tree,
  e.g. lesion_labels/lesion1/adc/r2
- pattern: keypath whose segments may be "*", matching one segment
- image: lazy leaf; file-backed, in-memory, or combined
- combined: consensus mask derived from the rater leaves under a
  keypath; lives at combined/<keypath> and is persisted under the
  cache dir as <cacheDir>/<id>/<keypath>/combined<ext>
- extension table: persisted per-rater mask existence checks joined
  onto the radiological metadata

Cache contract: nothing derived is ever invalidated.  A combined
mask file, once written, is trusted by every later session regardless
of changes to its source annotations or to the threshold policy
requested; the same holds for the extension table.  Delete the cache
dir to force recomputation.

*/

package ai4ar
