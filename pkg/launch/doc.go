// Package launch reads launch descriptions and starts the nodes they
// name on a bus runtime.
//
// A description is YAML:
//
//	arguments:
//	  - name: camera_name
//	    default: vimbax_camera_test
//	nodes:
//	  - package: vimbax_camera
//	    executable: vimbax_camera_node
//	    name: $(var camera_name)
//	    namespace: $(var camera_name)
//	    parameters:
//	      camera_frame_id: camera_link
//	      autostream: 1
//
// $(var name) is replaced by the argument's value; command-line style
// overrides ("camera_name:=cam1") take precedence over defaults.
package launch
