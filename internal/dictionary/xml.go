package dictionary

import "encoding/xml"

// xmlDictionary mirrors the on-disk FIX dictionary document shape:
//
//	<fix>
//	  <import file="FIX42.xml"/>
//	  <field tag="35" name="MsgType" type="STRING">
//	    <enum value="D" description="ORDER_SINGLE"/>
//	  </field>
//	  <message msgType="D" name="NewOrderSingle">
//	    <tag id="11"/>
//	    <groupRef name="NoAllocs"/>
//	  </message>
//	  <group name="NoAllocs" countTag="78" firstTag="79">
//	    <member tag="79"/>
//	    <nestedGroup name="..."/>
//	  </group>
//	</fix>
type xmlDictionary struct {
	XMLName  xml.Name      `xml:"fix"`
	Imports  []xmlImport   `xml:"import"`
	Fields   []xmlField    `xml:"field"`
	Messages []xmlMessage  `xml:"message"`
	Groups   []xmlGroup    `xml:"group"`
}

type xmlImport struct {
	File string `xml:"file,attr"`
}

type xmlField struct {
	Tag  int      `xml:"tag,attr"`
	Name string   `xml:"name,attr"`
	Type string   `xml:"type,attr"`
	Enum []xmlEnum `xml:"enum"`
}

type xmlEnum struct {
	Value       string `xml:"value,attr"`
	Description string `xml:"description,attr"`
}

type xmlMessage struct {
	MsgType string       `xml:"msgType,attr"`
	Name    string       `xml:"name,attr"`
	Tags    []xmlTagRef  `xml:"tag"`
	Groups  []xmlGroupRef `xml:"groupRef"`
}

type xmlTagRef struct {
	ID int `xml:"id,attr"`
}

type xmlGroupRef struct {
	Name string `xml:"name,attr"`
}

type xmlGroup struct {
	Name     string        `xml:"name,attr"`
	CountTag int           `xml:"countTag,attr"`
	FirstTag int           `xml:"firstTag,attr"`
	Members  []xmlMember   `xml:"member"`
	Nested   []xmlGroupRef `xml:"nestedGroup"`
}

type xmlMember struct {
	Tag int `xml:"tag,attr"`
}
